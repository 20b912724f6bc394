package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/apperr"
)

// parseDay accepts RFC 3339 or a bare date. A bare "to" date covers the
// whole day.
func parseDay(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// --- GET: /api/reports/:businessId?from=&to= ---
func (h *Handler) GetSalesReport(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	from, err := parseDay(c.Query("from"), false)
	if err != nil {
		fail(c, err)
		return
	}
	to, err := parseDay(c.Query("to"), true)
	if err != nil {
		fail(c, err)
		return
	}

	data, err := h.svc.SalesReport(c.Request.Context(), who, c.Param("businessId"), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// --- GET: /api/reports/:businessId/valuation ---
// GetStockValuation calculates the total monetary value of the inventory
func (h *Handler) GetStockValuation(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	data, err := h.svc.StockValuation(c.Request.Context(), who, c.Param("businessId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}
