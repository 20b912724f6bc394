package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bar-pos/internal/models"
)

// Claims defines what is inside the token (The "ID Card")
type Claims struct {
	UserID     string      `json:"user_id"`
	Name       string      `json:"name"`
	BusinessID string      `json:"business_id,omitempty"`
	Role       models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tenant is the business the bearer acts for.
func (c *Claims) Tenant() string {
	if c.BusinessID == "" {
		return models.PlatformTenant
	}
	return c.BusinessID
}

// Tokens signs and checks session tokens with one HMAC secret.
type Tokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour // Token lasts 1 day
	}
	return &Tokens{key: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates a signed JWT for a user
func (t *Tokens) GenerateToken(u models.User) (string, error) {
	now := t.now()
	claims := &Claims{
		UserID:     u.ID,
		Name:       u.Name,
		BusinessID: u.BusinessID,
		Role:       u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// ValidateToken checks if a token is fake or expired
func (t *Tokens) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("invalid role in token")
	}

	return claims, nil
}
