package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/models"
)

// --- PUT: /api/sync/:businessId/products ---
// ReplaceProducts overwrites the tenant's whole product list.
func (h *Handler) ReplaceProducts(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var products []models.Product
	if err := c.ShouldBindJSON(&products); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product list"})
		return
	}

	if err := h.svc.ReplaceProducts(c.Request.Context(), who, c.Param("businessId"), products); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Products synced", "count": len(products)})
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// --- UPLOAD: Handle product image files ---
func (h *Handler) UploadImage(c *gin.Context) {
	// 1. Get the file from the request
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	// 2. Only allow images
	name := filepath.Base(file.Filename)
	if !imageExts[strings.ToLower(filepath.Ext(name))] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only image files are allowed"})
		return
	}

	// 3. Generate a unique filename, e.g. "167890123_burger.jpg"
	filename := fmt.Sprintf("%d_%s", time.Now().UnixNano(), strings.ReplaceAll(name, " ", "_"))
	if err := os.MkdirAll(h.opts.UploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	// 4. Save the file to the uploads folder
	if err := c.SaveUploadedFile(file, filepath.Join(h.opts.UploadDir, filename)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"url":     strings.TrimSuffix(h.opts.BaseURL, "/") + "/uploads/" + filename,
	})
}
