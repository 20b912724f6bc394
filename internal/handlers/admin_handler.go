package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/models"
)

// --- PUT: /api/users/:id ---
// SaveUser creates or updates a staff account. The password field is
// optional on update.
func (h *Handler) SaveUser(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var u models.User
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user"})
		return
	}
	u.ID = c.Param("id")

	saved, err := h.svc.SaveUser(c.Request.Context(), who, u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// --- DELETE: /api/users/:id ---
func (h *Handler) DeleteUser(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteUser(c.Request.Context(), who, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// --- PUT: /api/businesses/:id ---
func (h *Handler) SaveBusiness(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var b models.Business
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid business"})
		return
	}
	b.ID = c.Param("id")

	saved, err := h.svc.SaveBusiness(c.Request.Context(), who, b)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
