package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/config"
	"github.com/yourusername/freelance-billing/metrics"
	"github.com/yourusername/freelance-billing/middleware"
	"gorm.io/gorm"
)

type RouterDeps struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Service  *billing.Service
	Provider billing.PaymentProvider
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// NewRouter wires every HTTP route of the billing API.
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(d.Logger))
	if d.Metrics != nil {
		router.Use(d.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "freelance-billing-api",
		})
	})

	webhooks := NewWebhookHandler(d.Service, d.Provider)
	router.POST("/webhooks/stripe", webhooks.Stripe)

	authHandler := NewAuthHandler(d.DB, d.Cfg)
	router.POST("/api/v1/auth/refresh", authHandler.Refresh)

	api := router.Group("/api/v1")
	api.Use(middleware.JwtAuthMiddleware(d.Cfg))
	{
		invoices := NewInvoiceHandler(d.Service)
		api.POST("/invoices", invoices.CreateInvoice)
		api.POST("/invoices/preview", invoices.PreviewInvoice)
		api.GET("/invoices", invoices.ListInvoices)
		api.GET("/invoices/overdue", invoices.ListOverdue)
		api.GET("/invoices/summary", invoices.Summary)
		api.GET("/invoices/next-number", invoices.NextNumber)
		api.GET("/invoices/:id", invoices.GetInvoice)
		api.GET("/invoices/:id/document", invoices.GetDocument)
		api.POST("/invoices/:id/transition", invoices.Transition)
		api.POST("/invoices/:id/payment-intent", invoices.CreatePaymentIntent)
		api.DELETE("/invoices/:id", invoices.DeleteInvoice)

		resources := NewResourceHandler(d.Service)
		api.DELETE("/clients/:id", resources.DeleteClient)
		api.DELETE("/projects/:id", resources.DeleteProject)
		api.DELETE("/time-entries/:id", resources.DeleteTimeEntry)

		admin := api.Group("/admin", middleware.RequireRole("admin"))
		adminHandler := NewAdminHandler(d.Service)
		admin.POST("/recurring/run", adminHandler.RunRecurring)
		admin.POST("/reminders/run", adminHandler.RunReminders)
		admin.GET("/payment-events/failed", adminHandler.ListFailedPaymentEvents)
		admin.POST("/payment-events/:external_id/retry", adminHandler.RetryPaymentEvent)
	}

	return router
}
