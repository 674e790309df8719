package main

import (
	"fmt"

	"booking-service/config"
	"booking-service/internal/broker"
	"booking-service/internal/gateway"
	"booking-service/internal/redisclient"
	"booking-service/internal/service"
	"booking-service/internal/store"
	"booking-service/internal/util"
)

// deps holds the connections a command opened
type deps struct {
	cfg       *config.Config
	store     *store.Store
	redis     *redisclient.Client
	producer  *broker.Producer
	publisher *broker.EventPublisher
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.NewStore(cfg.Database.URL, store.PoolConfig{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

// openDeps connects to Postgres, Redis and Kafka
func openDeps() (*deps, error) {
	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		return nil, err
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	return &deps{
		cfg:       cfg,
		store:     db,
		redis:     rc,
		producer:  producer,
		publisher: broker.NewEventPublisher(producer),
	}, nil
}

func (d *deps) Close() {
	d.producer.Close()
	d.redis.Close()
	d.store.Close()
	util.SyncLogger()
}

func (d *deps) paymentService() *service.PaymentService {
	retry := gateway.RetryConfig{MaxAttempts: d.cfg.Business.RetryAttempts}
	stripeClient := gateway.NewStripeClient(gateway.StripeConfig{
		SecretKey:     d.cfg.Stripe.SecretKey,
		WebhookSecret: d.cfg.Stripe.WebhookSecret,
		APIURL:        d.cfg.Stripe.APIURL,
		Timeout:       d.cfg.Business.ProviderTimeout,
		Retry:         retry,
	})
	gatewayClient := gateway.NewSSLCommerzClient(gateway.SSLCommerzConfig{
		BaseURL:       d.cfg.SSLCommerz.BaseURL,
		StoreID:       d.cfg.SSLCommerz.StoreID,
		StorePassword: d.cfg.SSLCommerz.StorePassword,
		Timeout:       d.cfg.Business.ProviderTimeout,
		Retry:         retry,
	})

	return service.NewPaymentService(d.store, stripeClient, gatewayClient, d.redis, d.redis, d.publisher,
		service.PaymentConfig{
			APIBaseURL:       d.cfg.Server.APIBaseURL,
			FrontendURL:      d.cfg.Server.FrontendURL,
			DefaultCurrency:  d.cfg.Business.DefaultCurrency,
			GatewayCurrency:  d.cfg.SSLCommerz.Currency,
			ReconcileLockTTL: d.cfg.Business.ReconcileLockTTL,
			WebhookEventTTL:  d.cfg.Business.WebhookEventTTL,
		})
}
