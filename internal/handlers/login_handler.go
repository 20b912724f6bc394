package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/models"
	"bar-pos/internal/remotestore"
)

type LoginRequest struct {
	Business string `json:"business"` // empty or "platform" for a cross-tenant login
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the session token and the caller's snapshot.
type LoginResponse struct {
	Token  string        `json:"token"`
	User   models.User   `json:"user"`
	Bundle models.Bundle `json:"bundle"`
}

func (h *Handler) Login(c *gin.Context) {
	var input LoginRequest
	// 1. Validate Input JSON
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	// 2. Resolve the account and check the password
	user, err := h.svc.Login(c.Request.Context(), input.Business, input.Username, input.Password)
	if err != nil {
		fail(c, err)
		return
	}

	// 3. Pull the snapshot the terminal starts from
	bundle, err := h.svc.Bundle(c.Request.Context(), remotestore.Caller{
		UserID:     user.ID,
		Name:       user.Name,
		BusinessID: user.BusinessID,
		Role:       user.Role,
	})
	if err != nil {
		fail(c, err)
		return
	}

	// 4. Generate JWT Token
	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, User: user, Bundle: bundle})
}

// Register opens a new tenant with its owner account.
func (h *Handler) Register(c *gin.Context) {
	var input remotestore.RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	user, business, err := h.svc.Register(c.Request.Context(), input)
	if err != nil {
		fail(c, err)
		return
	}

	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":    token,
		"user":     user,
		"business": business,
	})
}
