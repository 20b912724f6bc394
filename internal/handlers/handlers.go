// Package handlers is the HTTP face of the remote store.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/apperr"
	"bar-pos/internal/auth"
	"bar-pos/internal/logger"
	"bar-pos/internal/middleware"
	"bar-pos/internal/remotestore"
)

type Options struct {
	UploadDir         string
	BaseURL           string
	AllowRegistration bool
	CORSOrigins       []string
}

type Handler struct {
	svc    *remotestore.Service
	tokens *auth.Tokens
	opts   Options
}

func New(svc *remotestore.Service, tokens *auth.Tokens, opts Options) *Handler {
	if opts.UploadDir == "" {
		opts.UploadDir = "./uploads"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}
	return &Handler{svc: svc, tokens: tokens, opts: opts}
}

// caller turns the token claims into the service principal.
func caller(c *gin.Context) (remotestore.Caller, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
		return remotestore.Caller{}, false
	}
	return remotestore.Caller{
		UserID:     claims.UserID,
		Name:       claims.Name,
		BusinessID: claims.BusinessID,
		Role:       claims.Role,
	}, true
}

// fail answers with the status of err's taxonomy class.
func fail(c *gin.Context, err error) {
	code := apperr.HTTPStatus(err)
	if code == http.StatusInternalServerError {
		logger.LogError("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(code, gin.H{"error": apperr.Message(err)})
}
