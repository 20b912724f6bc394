package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/utils"
)

// GetSystemStatus reports the server's device id and clock so terminals
// can spot drift before trusting timestamps.
func (h *Handler) GetSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"device_id":    utils.GetDeviceID(),
		"server_time":  time.Now().UTC(),
		"registration": h.opts.AllowRegistration,
	})
}
