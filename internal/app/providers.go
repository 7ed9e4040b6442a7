package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/wire"
	"github.com/juju/clock"
	"go.uber.org/zap"

	// Inbound adapters
	adminhttp "github.com/vpio/server/internal/adapter/inbound/http/admin"
	paymenthttp "github.com/vpio/server/internal/adapter/inbound/http/payment"
	systemhttp "github.com/vpio/server/internal/adapter/inbound/http/system"

	// Outbound adapters
	redisadapter "github.com/vpio/server/internal/adapter/outbound/redis"
	stripeadapter "github.com/vpio/server/internal/adapter/outbound/stripe"

	// Ports
	"github.com/vpio/server/internal/port/outbound"

	// Infrastructure
	"github.com/vpio/server/internal/infra/config"
	"github.com/vpio/server/internal/infra/database"
	"github.com/vpio/server/internal/infra/kvstore"
	"github.com/vpio/server/internal/infra/persistence"
	"github.com/vpio/server/internal/infra/task"

	// Modules
	"github.com/vpio/server/internal/module/apikey"
	"github.com/vpio/server/internal/module/payment"
	"github.com/vpio/server/internal/module/webhook"

	// Utils
	"github.com/vpio/server/internal/utils/logger"
	"github.com/vpio/server/internal/utils/metrics"
)

// Scheduled job names.
const (
	JobWebhookRetry = "webhook-retry"
	JobStoreSweep   = "store-sweep"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideClock,
	ProvideKVBackend,
	ProvideStore,
	ProvideQueueStore,
)

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) *zap.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideMetrics creates a metrics instance on the default registry.
func ProvideMetrics(cfg *config.Config) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Namespace)
}

// ProvideClock returns the wall clock.
func ProvideClock() clock.Clock {
	return clock.WallClock
}

// ProvideKVBackend creates the remote tier. It returns nil when no endpoint
// is configured, which runs the store in fallback mode.
func ProvideKVBackend(cfg *config.Config, log *zap.Logger) (outbound.KVBackendPort, func(), error) {
	if !cfg.Redis.Enabled() {
		log.Info("no redis endpoint configured, using in-memory store")
		return nil, func() {}, nil
	}

	client, err := redisadapter.NewClient(redisadapter.ClientConfig{
		URL:      cfg.Redis.URL,
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init redis client: %w", err)
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warn("redis client close failed", zap.Error(err))
		}
	}
	return redisadapter.NewKVBackendAdapter(client), cleanup, nil
}

// ProvideStore creates the dual-tier store and probes the remote tier once.
func ProvideStore(cfg *config.Config, backend outbound.KVBackendPort, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *kvstore.Store {
	return kvstore.New(context.Background(), backend,
		kvstore.WithClock(clk),
		kvstore.WithLogger(log),
		kvstore.WithMetrics(m),
		kvstore.WithProbeTimeout(cfg.Redis.ProbeTimeout),
		kvstore.WithOperationTimeout(cfg.Redis.OperationTimeout),
	)
}

// ProvideQueueStore selects the failed-webhook persistence strategy.
func ProvideQueueStore(cfg *config.Config, store *kvstore.Store, log *zap.Logger) (webhook.QueueStore, func(), error) {
	noop := func() {}

	switch cfg.WebhookRetry.Strategy {
	case config.RetryStrategyVolatile:
		return webhook.NewVolatileQueueStore(), noop, nil
	case config.RetryStrategyFile:
		return webhook.NewDurableQueueStore(cfg.WebhookRetry.FilePath, log), noop, nil
	case config.RetryStrategyKV:
		return webhook.NewKVQueueStore(store, webhook.DefaultKVKey), noop, nil
	case config.RetryStrategySQL:
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("init database: %w", err)
		}
		repo := persistence.NewWebhookQueueRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			_ = database.Close(db)
			return nil, nil, fmt.Errorf("migrate webhook queue: %w", err)
		}
		cleanup := func() {
			if err := database.Close(db); err != nil {
				log.Warn("database close failed", zap.Error(err))
			}
		}
		return repo, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown webhook retry strategy %q", cfg.WebhookRetry.Strategy)
	}
}

// ===== Module Providers =====

// ModuleSet provides domain services.
var ModuleSet = wire.NewSet(
	ProvidePaymentService,
	ProvideAPIKeyService,
	ProvideGateway,
	ProvideProcessor,
	ProvideQueue,
	ProvideTaskManager,
)

// ProvidePaymentService creates the payment record service.
func ProvidePaymentService(store *kvstore.Store, clk clock.Clock, log *zap.Logger) *payment.Service {
	return payment.NewService(store, log, payment.WithClock(clk))
}

// ProvideAPIKeyService creates the API key registry and seeds it.
func ProvideAPIKeyService(cfg *config.Config, store *kvstore.Store, log *zap.Logger) *apikey.Service {
	svc := apikey.NewService(store, cfg.Auth.DefaultAPIKeys, log)
	svc.Seed(context.Background())
	return svc
}

// ProvideGateway creates the Stripe gateway.
func ProvideGateway(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *stripeadapter.Gateway {
	return stripeadapter.NewGateway(stripeadapter.Config{
		SecretKey:        cfg.Stripe.SecretKey,
		WebhookSecret:    cfg.Stripe.WebhookSecret,
		FailureThreshold: cfg.Stripe.FailureThreshold,
		CircuitTimeout:   cfg.Stripe.CircuitTimeout,
	}, m, log)
}

// ProvideProcessor creates the webhook event processor.
func ProvideProcessor(payments *payment.Service, log *zap.Logger) *webhook.Processor {
	return webhook.NewProcessor(payments, log)
}

// ProvideQueue creates the webhook retry queue.
func ProvideQueue(qs webhook.QueueStore, processor *webhook.Processor, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *webhook.Queue {
	return webhook.NewQueue(qs, processor, log, webhook.WithClock(clk), webhook.WithMetrics(m))
}

// ProvideTaskManager registers the periodic maintenance jobs.
func ProvideTaskManager(cfg *config.Config, clk clock.Clock, queue *webhook.Queue, store *kvstore.Store, log *zap.Logger) (*task.Manager, error) {
	tasks := task.NewManager(clk, log)

	if err := tasks.Register(JobWebhookRetry, cfg.WebhookRetry.Interval, func(ctx context.Context, now time.Time) {
		if _, err := queue.RetryFailedWebhooks(ctx, now); err != nil {
			log.Error("webhook retry pass failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}

	if err := tasks.Register(JobStoreSweep, cfg.Store.SweepInterval, func(_ context.Context, now time.Time) {
		store.Sweep(now)
	}); err != nil {
		return nil, err
	}

	return tasks, nil
}

// ===== HTTP Providers =====

// HTTPSet provides handlers and the router.
var HTTPSet = wire.NewSet(
	ProvideHandlers,
	ProvideRouter,
)

// ProvideHandlers creates every HTTP handler.
func ProvideHandlers(
	payments *payment.Service,
	keys *apikey.Service,
	gateway *stripeadapter.Gateway,
	processor *webhook.Processor,
	queue *webhook.Queue,
	clk clock.Clock,
) *Handlers {
	return &Handlers{
		Health:  systemhttp.NewHealthHandler(gateway, payments, clk),
		Stats:   systemhttp.NewStatsHandler(queue, payments),
		Payment: paymenthttp.NewPaymentHandler(payments, gateway),
		Webhook: paymenthttp.NewWebhookHandler(gateway, processor, queue),
		Keys:    adminhttp.NewKeyHandler(keys),
	}
}

// AppSet is the full provider graph.
var AppSet = wire.NewSet(
	InfraSet,
	ModuleSet,
	HTTPSet,
	NewApp,
)
