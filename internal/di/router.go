package di

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"github.com/prohmpiriya/tourismhub-booking/pkg/middleware"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
)

// RouterConfig contains configuration for the HTTP router
type RouterConfig struct {
	ServiceName string
	Auth        *middleware.AuthConfig
	// Idempotency enables X-Idempotency-Key handling on booking writes.
	// Nil disables it.
	Idempotency *middleware.IdempotencyConfig
	Logger      *logger.Logger
}

// NewRouter builds the gin engine with all routes
func (c *Container) NewRouter(cfg *RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware(cfg.ServiceName))
	if cfg.Logger != nil {
		router.Use(middleware.Logger(cfg.Logger))
	}

	router.GET("/health", c.HealthHandler.Health)
	router.GET("/ready", c.HealthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		// Authenticated by signature, not by bearer token
		v1.POST("/payments/webhook", c.WebhookHandler.HandleStripeWebhook)

		bookings := v1.Group("/bookings")
		bookings.Use(middleware.Auth(cfg.Auth))

		writes := []gin.HandlerFunc{}
		if cfg.Idempotency != nil {
			writes = append(writes, middleware.Idempotency(cfg.Idempotency))
		}
		with := func(h gin.HandlerFunc) []gin.HandlerFunc {
			return append(append([]gin.HandlerFunc{}, writes...), h)
		}

		bookings.POST("", with(c.BookingHandler.CreateBooking)...)
		bookings.GET("/:id", c.BookingHandler.GetBooking)
		bookings.PUT("/:id/cancel", with(c.BookingHandler.CancelBooking)...)
		bookings.DELETE("/:id", with(c.BookingHandler.DeleteBooking)...)
	}

	return router
}
