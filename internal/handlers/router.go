package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bar-pos/internal/logger"
	"bar-pos/internal/middleware"
	"bar-pos/internal/models"
)

// NewRouter wires every route onto a gin engine. metrics is mounted at
// /metrics when non-nil.
func NewRouter(h *Handler, metrics http.Handler) *gin.Engine {
	r := gin.Default()

	corsCfg := cors.Config{
		AllowOrigins:     h.opts.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Device-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		// terminals are not browsers; without configured origins allow any, no cookies
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "online"}) })
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	r.Static("/uploads", h.opts.UploadDir)
	r.GET("/api/system/status", h.GetSystemStatus)
	r.POST("/api/auth/login", h.Login)

	// --- FEATURE FLAG: Tenant Registration ---
	if h.opts.AllowRegistration {
		r.POST("/api/auth/register", h.Register)
		logger.LogInfo("registration route is open")
	} else {
		logger.LogInfo("registration route is disabled")
	}

	// --- PROTECTED ROUTES ---
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(h.tokens))
	{
		api.GET("/sync", h.GetBundle)

		tenant := api.Group("/sync/:businessId")
		tenant.Use(middleware.TenantGuard("businessId"))
		{
			tenant.PUT("/products", h.ReplaceProducts)
			tenant.POST("/sales", h.AppendSale)
			tenant.POST("/audit-logs", h.AppendAuditLog)
		}

		// role and tenant rules for these live in the service
		api.PUT("/users/:id", h.SaveUser)
		api.DELETE("/users/:id", h.DeleteUser)
		api.PUT("/businesses/:id", h.SaveBusiness)

		managers := api.Group("/")
		managers.Use(middleware.RequireRole(models.RoleSuperAdmin, models.RoleOwner, models.RoleAdmin))
		{
			managers.POST("/upload", h.UploadImage)

			reports := managers.Group("/reports/:businessId")
			reports.Use(middleware.TenantGuard("businessId"))
			{
				reports.GET("", h.GetSalesReport)
				reports.GET("/valuation", h.GetStockValuation)
			}
		}
	}
	return r
}
