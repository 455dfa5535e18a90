package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqcontracts "casedesk/contracts/mq"
	"casedesk/internal/cache"
	"casedesk/internal/config"
	"casedesk/internal/handler"
	"casedesk/internal/httpserver"
	"casedesk/internal/mqhandler"
	"casedesk/internal/repository"
	"casedesk/internal/service"
	"casedesk/pkg/db"
	"casedesk/pkg/logger"
	"casedesk/pkg/mongodb"
	"casedesk/pkg/mq"
	"casedesk/pkg/otel"
	"casedesk/pkg/redis"
	"casedesk/pkg/util"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("info").Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting notification-service...",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("port", cfg.Server.Port),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
	)

	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	// Redis (optional): unread-count cache and MQ dedup/retry bookkeeping
	opts := service.Options{MaxPageSize: cfg.Notification.MaxPageSize}
	var (
		deduper      mqhandler.Deduper
		retryCounter mqhandler.RetryCounter
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewRedisClient(cfg.Redis, log)
		defer rdb.Close()

		opts.Cache = cache.NewUnreadCounter(rdb, cfg.Notification.UnreadCacheTTL(), log)
		deduper = util.NewDeduper(rdb, 24*time.Hour, log)
		retryCounter = util.NewRetryCounter(rdb, time.Hour)
	}

	// Services
	notificationService := service.NewNotificationService(store, log, opts)

	// MQ consumers for producer events
	var consumers []*mq.Consumer
	if cfg.MQ.Enabled {
		createdHandler := mqhandler.NewNotificationCreatedHandler(
			notificationService, deduper, retryCounter, cfg.MQ.MaxRetries, log,
		)
		for _, sub := range []struct {
			queue, routingKey string
			handle            mq.MessageHandler
		}{
			{"notification.created.q", mqcontracts.RoutingKeyNotificationCreated, createdHandler.HandleCreated},
			{"notification.bulk_created.q", mqcontracts.RoutingKeyNotificationBulkCreated, createdHandler.HandleBulkCreated},
		} {
			log.Info("Initializing MQ consumer...",
				zap.String("queue", sub.queue),
				zap.String("routing_key", sub.routingKey),
			)
			consumer, err := mq.NewConsumer(cfg.MQ.URL, sub.queue, sub.routingKey, cfg.MQ.Prefetch, log)
			if err != nil {
				log.Fatal("Failed to init consumer", zap.String("queue", sub.queue), zap.Error(err))
			}
			defer consumer.Close()
			consumer.SetHandler(sub.handle)
			consumers = append(consumers, consumer)

			go func(c *mq.Consumer, queue string) {
				if err := c.StartConsuming(ctx); err != nil {
					log.Error("Consumer failed", zap.String("queue", queue), zap.Error(err))
				}
			}(consumer, sub.queue)
		}
	}

	// HTTP server
	router := httpserver.NewRouter(
		handler.NewNotificationHandler(notificationService, log),
		handler.NewAdminHandler(notificationService, log),
		notificationService,
		cfg.JWT.Secret,
		log,
	)
	srv := router.Server(cfg.Addr())

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notification-service is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification-service gracefully...")

	for _, c := range consumers {
		c.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	cancel()
	log.Info("notification-service shutdown complete")
}

// openStore connects the configured driver. Postgres and memory get an
// expiry sweeper; Mongo expires records through its TTL index.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, func()) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, database, err := mongodb.NewClient(cfg.Mongo, log)
		if err != nil {
			log.Fatal("Failed to init MongoDB", zap.Error(err))
		}
		store := repository.NewMongoStore(client, database, log)
		if err := store.EnsureIndexes(ctx); err != nil {
			log.Fatal("Failed to ensure indexes", zap.Error(err))
		}
		return store, func() { _ = client.Disconnect(context.Background()) }

	case config.DriverMemory:
		store := repository.NewMemoryStore(log)
		startSweeper(ctx, store, cfg, log)
		return store, func() {}

	default:
		pool, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			log.Fatal("Failed to apply schema", zap.Error(err))
		}
		store := repository.NewPostgresStore(pool, log)
		startSweeper(ctx, store, cfg, log)
		return store, pool.Close
	}
}

func startSweeper(ctx context.Context, store repository.Expirer, cfg *config.Config, log *zap.Logger) {
	sweeper := repository.NewExpirySweeper(store, log).
		WithInterval(cfg.Notification.SweepInterval())
	go sweeper.Start(ctx)
}
