package di

import (
	"github.com/prohmpiriya/tourismhub-booking/internal/handler"
	"github.com/prohmpiriya/tourismhub-booking/internal/repository"
	"github.com/prohmpiriya/tourismhub-booking/internal/service"
	"github.com/prohmpiriya/tourismhub-booking/internal/worker"
	"github.com/prohmpiriya/tourismhub-booking/pkg/database"
	"github.com/prohmpiriya/tourismhub-booking/pkg/redis"
)

// Container holds all dependencies for the booking service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Storage
	Store repository.Store

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	Ledger            *service.InventoryLedger
	BookingService    service.BookingService
	PaymentReconciler service.PaymentReconciler

	// Workers
	ExpiryWorker *worker.ExpiryWorker

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
	WebhookHandler *handler.WebhookHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	ServiceName      string
	DB               *database.PostgresDB
	Redis            *redis.Client
	Store            repository.Store
	EventPublisher   service.EventPublisher
	RefundInitiator  service.RefundInitiator
	ServiceConfig    *service.BookingServiceConfig
	ReconcilerConfig *service.PaymentReconcilerConfig
	ExpiryConfig     *worker.ExpiryWorkerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		Store:          cfg.Store,
		EventPublisher: cfg.EventPublisher,
	}
	if c.EventPublisher == nil {
		c.EventPublisher = service.NewNoOpEventPublisher()
	}
	refunds := cfg.RefundInitiator
	if refunds == nil {
		refunds = service.NoOpRefundInitiator{}
	}

	// Initialize services
	c.Ledger = service.NewInventoryLedger()
	c.BookingService = service.NewBookingService(c.Store, c.Ledger, c.EventPublisher, refunds, cfg.ServiceConfig)
	c.PaymentReconciler = service.NewPaymentReconciler(c.Store, c.Ledger, c.EventPublisher, refunds, cfg.ReconcilerConfig)

	// Initialize workers
	c.ExpiryWorker = worker.NewExpiryWorker(c.BookingService, cfg.ExpiryConfig)

	// Initialize handlers
	checkers := map[string]handler.HealthChecker{}
	if c.DB != nil {
		checkers["database"] = c.DB
	}
	if c.Redis != nil {
		checkers["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(cfg.ServiceName, checkers)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)
	c.WebhookHandler = handler.NewWebhookHandler(c.PaymentReconciler)

	return c
}
