// Package app wires every component into one running process, following
// the teacher's spot.App constructor-based lifecycle
// (New/Start/Stop) rather than a DI container: pools and clients are
// constructed, repositories are wired into the coordinator, the
// recovery runner completes before the cache-sync scheduler and the
// ingress/dead-letter consumers start, per spec.md §2's ordering.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/IBM/sarama"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nastyazhadan/matching-engine/internal/cachesync"
	"github.com/nastyazhadan/matching-engine/internal/config"
	"github.com/nastyazhadan/matching-engine/internal/deadletter"
	"github.com/nastyazhadan/matching-engine/internal/egress"
	"github.com/nastyazhadan/matching-engine/internal/events"
	"github.com/nastyazhadan/matching-engine/internal/idempotency"
	"github.com/nastyazhadan/matching-engine/internal/ingress"
	"github.com/nastyazhadan/matching-engine/internal/matching"
	"github.com/nastyazhadan/matching-engine/internal/recovery"
	"github.com/nastyazhadan/matching-engine/internal/repository/cache"
	"github.com/nastyazhadan/matching-engine/internal/repository/postgres"
	"github.com/nastyazhadan/matching-engine/internal/resilience"
	"github.com/nastyazhadan/matching-engine/migrations"
	closerpkg "github.com/nastyazhadan/matching-engine/pkg/closer"
	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

// App owns every long-lived resource of one matching engine instance.
type App struct {
	cfg    config.Config
	closer *closerpkg.Closer

	coordinator *matching.Coordinator
	scheduler   *cachesync.Scheduler
	recovery    *recovery.Runner

	orderConsumerGroup sarama.ConsumerGroup
	dlqConsumerGroup   sarama.ConsumerGroup
	orderDispatcher    *ingress.Dispatcher
	dlqHandler         *deadletter.Handler

	producer    sarama.AsyncProducer
	dlqProducer sarama.SyncProducer
	publisher   *egress.Publisher

	redis *redis.Client
}

// New records the configuration and an empty closer; it opens nothing.
// Every pool, client and component is constructed in Start.
func New(cfg config.Config) (*App, error) {
	return &App{cfg: cfg, closer: closerpkg.New()}, nil
}

// Start brings the instance up in the order spec.md §2 requires:
// migrate, build repositories, run recovery once, then start the
// cache-sync scheduler, then enable ingress and the dead-letter
// handler last.
func (a *App) Start(ctx context.Context) error {
	const op = "app.App.Start"

	pool, err := postgres.NewPool(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.closer.Add("postgres pool", func(context.Context) error { pool.Close(); return nil })

	if err := migrate(ctx, a.cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("%s: migrate: %w", op, err)
	}

	primary := postgres.NewPrimaryStore(pool)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.redis = redisClient
	a.closer.Add("redis client", func(context.Context) error { return redisClient.Close() })

	bookCache := cache.New(redisClient)

	idemStore, err := idempotency.New(redisClient, a.cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	producer, err := sarama.NewAsyncProducer(a.cfg.Kafka.Brokers, egress.NewProducerConfig(a.cfg.Kafka))
	if err != nil {
		return fmt.Errorf("%s: async producer: %w", op, err)
	}
	a.producer = producer
	publisher := egress.New(producer)
	a.publisher = publisher
	a.closer.Add("egress publisher", func(context.Context) error { return publisher.Close() })

	dlqProducer, err := sarama.NewSyncProducer(a.cfg.Kafka.Brokers, egress.NewProducerConfig(a.cfg.Kafka))
	if err != nil {
		return fmt.Errorf("%s: dlq producer: %w", op, err)
	}
	a.dlqProducer = dlqProducer
	a.closer.Add("dlq producer", func(context.Context) error { return dlqProducer.Close() })

	registry := cachesync.NewRegistry()

	breakerStore := resilience.Wrap(primary, primary, resilience.Config{
		MaxRequests: a.cfg.CircuitBreaker.MaxRequests,
		Interval:    a.cfg.CircuitBreaker.Interval,
		Timeout:     a.cfg.CircuitBreaker.Timeout,
		MaxFailures: a.cfg.CircuitBreaker.MaxFailures,
	})

	a.coordinator = matching.NewCoordinator(breakerStore, breakerStore, publisher, registry, matching.Config{
		MaxVersionRetries: a.cfg.Persistence.VersionRetryMax,
	})
	a.closer.Add("matching coordinator", func(context.Context) error { a.coordinator.Stop(); return nil })

	a.recovery = recovery.New(primary, bookCache, registry)
	a.scheduler = cachesync.New(registry, primary, bookCache, cachesync.Config{
		Interval:     a.cfg.CacheSync.Interval,
		InitialDelay: a.cfg.CacheSync.InitialDelay,
	})

	logger.Info(ctx, "running boot-time recovery")
	if err := a.recovery.Run(ctx); err != nil {
		return fmt.Errorf("%s: recovery: %w", op, err)
	}

	go a.scheduler.Start(ctx)
	a.closer.Add("cache-sync scheduler", a.scheduler.Stop)

	a.orderDispatcher = ingress.New(idemStore, primary, a.coordinator, dlqProducer, ingress.Config{
		Concurrency:  a.cfg.Ingress.Concurrency,
		RetryBackoff: a.cfg.Ingress.RetryBackoff,
		RetryMax:     a.cfg.Ingress.RetryMax,
	})
	a.dlqHandler = deadletter.New(primary, publisher)

	if err := a.startConsumers(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info(ctx, "matching engine started")
	return nil
}

func (a *App) startConsumers(ctx context.Context) error {
	const op = "app.App.startConsumers"

	orderGroup, err := sarama.NewConsumerGroup(a.cfg.Kafka.Brokers, a.cfg.Kafka.ConsumerGroup, ingress.NewConsumerConfig(a.cfg.Kafka))
	if err != nil {
		return fmt.Errorf("%s: order consumer group: %w", op, err)
	}
	a.orderConsumerGroup = orderGroup
	a.closer.Add("order-input consumer group", func(context.Context) error { return orderGroup.Close() })

	dlqGroup, err := sarama.NewConsumerGroup(a.cfg.Kafka.Brokers, a.cfg.Kafka.DLQConsumerGroup, ingress.NewConsumerConfig(a.cfg.Kafka))
	if err != nil {
		return fmt.Errorf("%s: dlq consumer group: %w", op, err)
	}
	a.dlqConsumerGroup = dlqGroup
	a.closer.Add("dead-letter consumer group", func(context.Context) error { return dlqGroup.Close() })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumeLoop(gctx, orderGroup, []string{events.TopicOrderInput}, a.orderDispatcher)
	})
	g.Go(func() error {
		return consumeLoop(gctx, dlqGroup, []string{events.TopicOrderInputDLQ, events.TopicTradeOutputDLQ}, a.dlqHandler)
	})

	go func() {
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "consumer group exited unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

func consumeLoop(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler) error {
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error(ctx, "consumer group session error", zap.Strings("topics", topics), zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Stop runs every registered closer in LIFO order within the shutdown
// deadline.
func (a *App) Stop(ctx context.Context) error {
	return a.closer.CloseAll(ctx)
}

func migrate(ctx context.Context, connString string) error {
	sqlDB, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("app.migrate: open: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("app.migrate: dialect: %w", err)
	}
	return goose.UpContext(ctx, sqlDB, ".")
}
