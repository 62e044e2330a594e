package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/tourismhub-booking/internal/di"
	"github.com/prohmpiriya/tourismhub-booking/internal/metrics"
	"github.com/prohmpiriya/tourismhub-booking/internal/repository"
	"github.com/prohmpiriya/tourismhub-booking/internal/service"
	"github.com/prohmpiriya/tourismhub-booking/internal/worker"
	"github.com/prohmpiriya/tourismhub-booking/pkg/config"
	"github.com/prohmpiriya/tourismhub-booking/pkg/database"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"github.com/prohmpiriya/tourismhub-booking/pkg/middleware"
	pkgredis "github.com/prohmpiriya/tourismhub-booking/pkg/redis"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "tourismhub-booking"

func main() {
	// Runs last so deferred cleanup completes first
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting booking service", zap.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing and metrics
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Fatal("Telemetry initialization failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	if err := metrics.Init(); err != nil {
		appLog.Warn("Metrics initialization failed", zap.Error(err))
	}

	// Initialize database connection
	if err := cfg.ValidateDatabase(); err != nil {
		appLog.Fatal("Invalid database configuration", zap.Error(err))
	}
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected", zap.Int32("min_conns", dbCfg.MinConns), zap.Int32("max_conns", dbCfg.MaxConns))

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, repository.Schema); err != nil {
			appLog.Fatal("Schema migration failed", zap.Error(err))
		}
		appLog.Info("Schema migrated")
	}

	// Redis backs the idempotency middleware; without it writes run unguarded
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: 100 * time.Millisecond,
		})
		if err != nil {
			appLog.Warn("Redis connection failed, idempotency keys disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			appLog.Info("Redis connected")
		}
	}

	// Initialize Kafka event publisher
	var eventPublisher service.EventPublisher = service.NewNoOpEventPublisher()
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ServiceName: serviceName,
			ClientID:    cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		} else {
			eventPublisher = kafkaPublisher
			appLog.Info("Kafka event publisher connected", zap.String("topic", cfg.Kafka.Topic))
		}
	}
	defer eventPublisher.Close()

	// Refunds are only issued when an API key is configured
	var refundInitiator service.RefundInitiator = service.NoOpRefundInitiator{}
	if cfg.Stripe.SecretKey != "" {
		stripeRefunds, err := service.NewStripeRefundInitiator(cfg.Stripe.SecretKey)
		if err != nil {
			appLog.Fatal("Stripe refund initiator failed", zap.Error(err))
		}
		refundInitiator = stripeRefunds
	}
	if cfg.Stripe.WebhookSecret == "" {
		appLog.Warn("STRIPE_WEBHOOK_SECRET is empty, every payment webhook will be rejected")
	}

	storeRetry := service.DefaultStoreRetryConfig()
	storeRetry.MaxRetries = cfg.Booking.MaxRetries
	if cfg.Booking.RetryInterval > 0 {
		storeRetry.InitialInterval = cfg.Booking.RetryInterval
	}

	// Build dependency injection container
	containerCfg := &di.ContainerConfig{
		ServiceName:     serviceName,
		DB:              db,
		Redis:           redisClient,
		Store:           repository.NewPostgresStore(db.Pool()),
		EventPublisher:  eventPublisher,
		RefundInitiator: refundInitiator,
		ServiceConfig: &service.BookingServiceConfig{
			AllowPriceOverride: cfg.Booking.AllowPriceOverride,
			DefaultCurrency:    cfg.Booking.DefaultCurrency,
			Retry:              storeRetry,
			AutoRefund:         cfg.Stripe.AutoRefundOnConflict,
		},
		ReconcilerConfig: &service.PaymentReconcilerConfig{
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Tolerance:     cfg.Stripe.WebhookTolerance,
			AutoRefund:    cfg.Stripe.AutoRefundOnConflict,
			Retry:         storeRetry,
		},
		ExpiryConfig: &worker.ExpiryWorkerConfig{
			ScanInterval: cfg.Booking.ExpiryInterval,
			PendingTTL:   cfg.Booking.PendingTTL,
			BatchSize:    cfg.Booking.ExpiryBatchSize,
		},
	}
	container := di.NewContainer(containerCfg)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	routerCfg := &di.RouterConfig{
		ServiceName: serviceName,
		Auth:        &middleware.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer},
		Logger:      appLog,
	}
	if redisClient != nil {
		routerCfg.Idempotency = middleware.DefaultIdempotencyConfig(redisClient)
	}
	router := container.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLog.Info("Booking service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := container.ExpiryWorker.Start(gctx); err != nil {
			return fmt.Errorf("expiry worker: %w", err)
		}
		<-gctx.Done()
		return container.ExpiryWorker.Stop()
	})

	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("Shutting down server...")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLog.Error("Booking service stopped with error", zap.Error(err))
		exitCode = 1
		return
	}

	stats := container.ExpiryWorker.GetStats()
	appLog.Info("Server exited gracefully", zap.Int64("expired_bookings", stats.TotalExpired))
}
