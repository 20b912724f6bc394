package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/middleware"
	"bar-pos/internal/models"
)

// --- GET: /api/sync ---
// GetBundle returns the caller's tenant snapshot and directory.
func (h *Handler) GetBundle(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	bundle, err := h.svc.Bundle(c.Request.Context(), who)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// --- POST: /api/sync/:businessId/sales ---
func (h *Handler) AppendSale(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var sale models.Sale
	if err := c.ShouldBindJSON(&sale); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sale"})
		return
	}

	added, err := h.svc.AppendSale(c.Request.Context(), who, c.Param("businessId"), sale)
	if err != nil {
		fail(c, err)
		return
	}
	appended(c, "sale", added)
}

// --- POST: /api/sync/:businessId/audit-logs ---
func (h *Handler) AppendAuditLog(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var entry models.AuditLog
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid audit log"})
		return
	}

	added, err := h.svc.AppendAuditLog(c.Request.Context(), who, c.Param("businessId"), entry)
	if err != nil {
		fail(c, err)
		return
	}
	appended(c, "audit", added)
}

// appended answers 201 for a new element and 200 for a repeat, which the
// terminal treats the same.
func appended(c *gin.Context, kind string, added bool) {
	if added {
		middleware.SyncAppends.WithLabelValues(kind, "added").Inc()
		c.JSON(http.StatusCreated, gin.H{"added": true})
		return
	}
	middleware.SyncAppends.WithLabelValues(kind, "duplicate").Inc()
	c.JSON(http.StatusOK, gin.H{"added": false})
}
