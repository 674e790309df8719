package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-service/config"
	"booking-service/internal/api"
	"booking-service/internal/broker"
	"booking-service/internal/gateway"
	"booking-service/internal/redisclient"
	"booking-service/internal/service"
	"booking-service/internal/store"
	"booking-service/internal/util"
	"booking-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting booking service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, store.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(context.Background()); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	retry := gateway.RetryConfig{MaxAttempts: cfg.Business.RetryAttempts}
	stripeClient := gateway.NewStripeClient(gateway.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		APIURL:        cfg.Stripe.APIURL,
		Timeout:       cfg.Business.ProviderTimeout,
		Retry:         retry,
	})
	gatewayClient := gateway.NewSSLCommerzClient(gateway.SSLCommerzConfig{
		BaseURL:       cfg.SSLCommerz.BaseURL,
		StoreID:       cfg.SSLCommerz.StoreID,
		StorePassword: cfg.SSLCommerz.StorePassword,
		Timeout:       cfg.Business.ProviderTimeout,
		Retry:         retry,
	})

	bookingService := service.NewBookingService(db, eventPublisher)
	paymentService := service.NewPaymentService(db, stripeClient, gatewayClient, redisClient, redisClient, eventPublisher,
		service.PaymentConfig{
			APIBaseURL:       cfg.Server.APIBaseURL,
			FrontendURL:      cfg.Server.FrontendURL,
			DefaultCurrency:  cfg.Business.DefaultCurrency,
			GatewayCurrency:  cfg.SSLCommerz.Currency,
			ReconcileLockTTL: cfg.Business.ReconcileLockTTL,
			WebhookEventTTL:  cfg.Business.WebhookEventTTL,
			WebhookCacheSize: cfg.Business.WebhookCacheSize,
		})
	adminService := service.NewAdminService(db, eventPublisher)
	lifecycleService := service.NewLifecycleService(db, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var scheduler *worker.EventScheduler
	if cfg.Scheduler.Enabled {
		scheduler = worker.NewEventScheduler(lifecycleService, redisClient, cfg.Scheduler.Interval)
		scheduler.Start(workerCtx)
	}

	bookingConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
	bookingWorker := worker.NewBookingWorker(bookingConsumer, lifecycleService)
	go func() {
		if err := bookingWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Booking worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(bookingService, paymentService, adminService, stripeClient,
		map[string]api.Pinger{"postgres": db, "redis": redisClient},
		cfg.Server.FrontendURL)
	handler.SetupRoutes(router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	workerCancel()
	if err := bookingWorker.Stop(); err != nil {
		logger.Warn("Error stopping booking worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
