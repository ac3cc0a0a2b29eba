package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cache/persistence"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/IWhitebird/trophy-leaderboard/api"
	"github.com/IWhitebird/trophy-leaderboard/config"
	_ "github.com/IWhitebird/trophy-leaderboard/docs"
	"github.com/IWhitebird/trophy-leaderboard/internal/cache"
	"github.com/IWhitebird/trophy-leaderboard/internal/db"
	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/metrics"
	"github.com/IWhitebird/trophy-leaderboard/internal/mq"
	"github.com/IWhitebird/trophy-leaderboard/internal/ranking"
)

func runServe(parent context.Context) error {
	logging.Info("Starting leaderboard service", "version", Version)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	engine, cleanup, err := setupEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	warmStart(ctx, engine)

	producer, consumer := setupKafka(ctx, cfg, engine)
	defer func() {
		if producer != nil {
			if err := producer.Close(); err != nil {
				logging.Error("Failed to close Kafka producer", "error", err)
			}
		}
		if consumer != nil {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer closeCancel()
			if err := consumer.Close(closeCtx); err != nil {
				logging.Error("Failed to close Kafka consumer", "error", err)
			}
		}
	}()

	scheduler, err := setupMonitor(ctx, cfg, engine)
	if err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	router, closeRouter := setupRouter(cfg, engine, producer)
	defer closeRouter()
	server := setupServer(cfg, router)

	stopped := handleGracefulShutdown(server, cancel)
	if err := startServer(cfg, server); err != nil {
		return err
	}
	<-stopped
	return nil
}

func setupRedis(cfg *config.AppConfig) (redis.UniversalClient, error) {
	logging.Info("Connecting to Redis", "addr", cfg.Redis.Addr)
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func setupPostgres(cfg *config.AppConfig) (*sql.DB, *db.PostgresRepository, error) {
	logging.Info("Initializing PostgreSQL connection", "host", cfg.Database.Host, "db", cfg.Database.Name)
	pgPool, err := db.CreatePool(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	pgRepo, err := db.NewPostgresRepository(pgPool)
	if err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL repository: %w", err)
	}
	logging.Info("PostgreSQL connection established")
	return pgPool, pgRepo, nil
}

// setupEngine wires each tier to its configured backend. The returned
// cleanup flushes the engine before closing connections.
func setupEngine(cfg *config.AppConfig) (*ranking.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	rc := cfg.Ranking
	prefix := cfg.Redis.KeyPrefix

	var client redis.UniversalClient
	if rc.IndexBackend == config.BackendRedis || rc.AttributeBackend == config.BackendRedis {
		var err error
		if client, err = setupRedis(cfg); err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
	}

	var durable ranking.DurableStore
	switch cfg.Database.Backend {
	case config.BackendPostgres:
		pool, repo, err := setupPostgres(cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = pool.Close() })
		durable = repo
	case config.BackendMemory:
		logging.Warn("Using in-memory durable store, data will not survive a restart")
		durable = db.NewMemoryRepository()
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unknown durable backend %q", cfg.Database.Backend)
	}

	var index ranking.ScoreIndex = cache.NewMemoryIndex()
	if rc.IndexBackend == config.BackendRedis {
		index = cache.NewRedisIndex(client, prefix)
	}

	var attrs ranking.AttributeCache = cache.NewStoreAttributeCache(persistence.NewInMemoryStore(rc.AttributeTTL), prefix, rc.AttributeTTL)
	if rc.AttributeBackend == config.BackendRedis {
		attrs = cache.NewRedisAttributeCache(client, prefix, rc.AttributeTTL)
	}

	snapshotStore, closeStore := newCacheStore(cfg, rc.SnapshotBackend, rc.SnapshotTTL)
	closers = append(closers, closeStore)
	snapshots := cache.NewSnapshotCache(snapshotStore, prefix)

	logging.Info("Ranking engine configured",
		"index", rc.IndexBackend, "attributes", rc.AttributeBackend,
		"snapshot", rc.SnapshotBackend, "durable", cfg.Database.Backend)

	engine := ranking.NewEngine(index, attrs, snapshots, durable, rc, cfg.WriteThrough)
	closers = append(closers, engine.Close)
	return engine, cleanup, nil
}

// newCacheStore builds a gin-contrib cache store. The Redis one uses the
// configured database and bounds each command by the index timeout.
func newCacheStore(cfg *config.AppConfig, backend string, defaultExpiration time.Duration) (persistence.CacheStore, func()) {
	if backend == config.BackendRedis {
		pool := cache.NewRedisPool(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Ranking.IndexTimeout)
		return cache.NewRedisStore(pool, defaultExpiration), func() { _ = pool.Close() }
	}
	return persistence.NewInMemoryStore(defaultExpiration), func() {}
}

// warmStart seeds an empty index from the durable store before serving.
func warmStart(ctx context.Context, engine *ranking.Engine) {
	result := engine.MonitorAndRebuild(ctx)
	logging.Info("Warm start check finished", "reason", result.Reason, "rebuilt", result.Rebuilt)
}

func setupKafka(ctx context.Context, cfg *config.AppConfig, engine *ranking.Engine) (*mq.KafkaProducer, *mq.KafkaConsumer) {
	if !cfg.Kafka.Enabled {
		logging.Info("Kafka ingestion disabled, scores are applied in the request")
		return nil, nil
	}

	producer, err := mq.NewKafkaProducer(cfg)
	if err != nil {
		logging.Error("Kafka producer unavailable, scores are applied in the request", "error", err)
		return nil, nil
	}

	consumer, err := mq.NewKafkaConsumer(cfg, engine)
	if err != nil {
		logging.Error("Kafka consumer unavailable, publishing disabled", "error", err)
		_ = producer.Close()
		return nil, nil
	}
	consumer.StartConsumer(ctx)
	logging.Info("Kafka ingestion started", "topic", cfg.Kafka.ScoresTopic)

	return producer, consumer
}

func setupMonitor(ctx context.Context, cfg *config.AppConfig, engine *ranking.Engine) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.Monitor.Schedule, func() {
		result := engine.MonitorAndRebuild(ctx)
		if result.Reason != ranking.ReasonHealthy {
			logging.Info("Snapshot monitor", "reason", result.Reason, "rebuilt", result.Rebuilt)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", cfg.Monitor.Schedule, err)
	}
	scheduler.Start()
	return scheduler, nil
}

func setupRouter(cfg *config.AppConfig, engine *ranking.Engine, producer *mq.KafkaProducer) (*gin.Engine, func()) {
	router := gin.New()
	router.Use(gin.Recovery())

	pageCache, closePageCache := newCacheStore(cfg, cfg.Ranking.SnapshotBackend, cfg.Ranking.EnrichedResponseTTL)
	opts := api.Options{
		Version:       Version,
		PageCache:     pageCache,
		EnrichedTTL:   cfg.Ranking.EnrichedResponseTTL,
		SnapshotLimit: cfg.Ranking.SnapshotLimit,
	}
	if producer != nil {
		opts.Publisher = producer
	}
	api.ConfigureRoutes(router, engine, opts)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return router, closePageCache
}

func setupServer(cfg *config.AppConfig, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// handleGracefulShutdown stops the server on SIGINT/SIGTERM. The returned
// channel closes once in-flight requests have drained.
func handleGracefulShutdown(server *http.Server, cancel context.CancelFunc) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logging.Info("Shutdown signal received, stopping server gracefully")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error("Server forced to shutdown", "error", err)
			return
		}
		logging.Info("Server gracefully stopped")
	}()
	return stopped
}

func startServer(cfg *config.AppConfig, server *http.Server) error {
	logging.Info("Starting server", "addr", server.Addr)
	logging.Info(fmt.Sprintf("Head to http://%s:%d/swagger/index.html to see the API documentation", cfg.Server.Host, cfg.Server.Port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
