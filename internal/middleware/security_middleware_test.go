package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/auth"
	"bar-pos/internal/models"
)

func newRouter(tokens *auth.Tokens) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/b/:businessId", AuthMiddleware(tokens), TenantGuard("businessId"))
	g.GET("", func(c *gin.Context) {
		claims, _ := Claims(c)
		c.String(http.StatusOK, claims.UserID)
	})
	g.GET("/admin", RequireRole(models.RoleOwner, models.RoleSuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthAndTenantGuard(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	r := newRouter(tokens)

	token := func(u models.User) string {
		s, err := tokens.GenerateToken(u)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + s
	}
	owner := token(models.User{ID: "u1", Role: models.RoleOwner, BusinessID: "b1"})
	bartender := token(models.User{ID: "u2", Role: models.RoleBartender, BusinessID: "b1"})
	super := token(models.User{ID: "u3", Role: models.RoleSuperAdmin})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/b/b1", "", http.StatusUnauthorized},
		{"not bearer", "/b/b1", "Token abc", http.StatusUnauthorized},
		{"garbage", "/b/b1", "Bearer abc", http.StatusUnauthorized},
		{"own tenant", "/b/b1", owner, http.StatusOK},
		{"other tenant", "/b/b2", owner, http.StatusForbidden},
		{"platform any tenant", "/b/b2", super, http.StatusOK},
		{"role allowed", "/b/b1/admin", owner, http.StatusNoContent},
		{"role denied", "/b/b1/admin", bartender, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
