package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todo-api/internal/auth"
	"todo-api/internal/cache"
	"todo-api/internal/config"
	"todo-api/internal/database"
	"todo-api/internal/logging"
	"todo-api/internal/monitoring"
	"todo-api/internal/repositories"
	"todo-api/internal/server"
	"todo-api/internal/services"
	"todo-api/internal/telemetry"
	"todo-api/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logging.New(cfg.Server.Environment, cfg.Server.LogLevel, os.Stdout)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flush traces", slog.String("error", err.Error()))
		}
	}()

	pool, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := connectRedis(ctx, cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	metrics := monitoring.NewMetrics()
	health := monitoring.NewHealthChecker(0)
	health.Register("database", pool.Health)

	cacheMetrics := cache.NewCacheMetrics()
	metrics.RegisterCacheMetrics(cacheMetrics)

	var redisCache *cache.RedisCache
	if rdb != nil {
		redisCache = cache.NewRedisCache(rdb, cache.DefaultCacheConfig().KeyPrefix)
		health.Register("redis", redisCache.Health)
	}
	breaker := cache.NewBreaker(cache.BreakerSettings{
		Threshold: cfg.Redis.BreakerThreshold,
		Cooldown:  cfg.Redis.BreakerCooldown,
		Trials:    cfg.Redis.BreakerTrials,
		OnChange: func(from, to cache.BreakerState) {
			log.Warn("remote cache breaker changed state",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	metrics.RegisterGauge("cache", "breaker_state", "Remote cache breaker state: 0 closed, 1 open, 2 half-open.", func() float64 {
		return float64(breaker.State())
	})
	taskCache := cache.NewMultiLevelCache(redisCache,
		cache.WithBreaker(breaker),
		cache.WithMetrics(cacheMetrics),
		cache.WithLogger(log),
	)

	users := repositories.NewUserRepository(pool.DB)
	auditRepo := repositories.NewAuditRepository(pool.DB)
	tasks := services.NewCachedTaskStore(repositories.NewTaskRepository(pool.DB), taskCache, log)
	if err := tasks.Warm(ctx); err != nil {
		log.Warn("cache warm-up failed", slog.String("error", err.Error()))
	}

	var audit services.AuditRecorder = services.NewStoreAuditRecorder(auditRepo)
	if rdb != nil {
		queue := worker.NewJobQueue(rdb)
		audit = services.NewQueuedAuditRecorder(queue, audit, log)

		w := worker.NewWorker(worker.WorkerConfig{
			RedisClient:  rdb,
			Concurrency:  cfg.Worker.Concurrency,
			PollInterval: cfg.Worker.PollInterval,
			Queues:       cfg.Worker.Queues,
			Logger:       log,
		})
		w.RegisterHandler(worker.JobTypeAuditLog, services.AuditJobHandler(auditRepo))
		w.Start(ctx, cfg.Worker.Concurrency)
		defer w.Stop()

		metrics.RegisterGauge("queue", "audit_pending", "Audit jobs waiting to be persisted.", func() float64 {
			size, err := queue.GetQueueSize(context.Background(), worker.QueueAudit)
			if err != nil {
				return 0
			}
			return float64(size)
		})
		metrics.RegisterGauge("queue", "audit_dead", "Audit jobs that exhausted their retries.", func() float64 {
			size, err := queue.GetDeadQueueSize(context.Background(), worker.QueueAudit)
			if err != nil {
				return 0
			}
			return float64(size)
		})
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.BCryptCost)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	srv := server.New(cfg, server.Dependencies{
		Accounts: services.NewAuthService(users, hasher, tokens, tasks, log),
		Tasks:    services.NewTaskService(tasks, audit, log),
		Tokens:   tokens,
		Metrics:  metrics,
		Health:   health,
		Logger:   log,
	})

	return srv.Run(ctx)
}

func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*database.DatabasePool, error) {
	poolConfig := &database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        logger.Warn,
	}
	if cfg.Database.Driver == database.DriverSQLite {
		poolConfig.MaxOpenConns = 1
	}

	pool, err := database.NewDatabasePool(poolConfig)
	if err != nil {
		return nil, err
	}

	version, err := pool.Migrate(ctx)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("database ready",
		slog.String("driver", pool.Driver()),
		slog.Int64("schema_version", version))

	return pool, nil
}

// connectRedis returns nil when Redis is disabled or unreachable. The cache
// then runs in-process only and audit entries are written synchronously.
func connectRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled")
		return nil
	}

	cacheConfig := cache.DefaultCacheConfig()
	cacheConfig.Addr = cfg.GetRedisAddr()
	cacheConfig.Password = cfg.Redis.Password
	cacheConfig.DB = cfg.Redis.DB
	cacheConfig.PoolSize = cfg.Redis.PoolSize
	cacheConfig.MinIdleConns = cfg.Redis.MinIdleConns
	cacheConfig.MaxRetries = cfg.Redis.MaxRetries
	cacheConfig.DialTimeout = cfg.Redis.DialTimeout
	cacheConfig.ReadTimeout = cfg.Redis.ReadTimeout
	cacheConfig.WriteTimeout = cfg.Redis.WriteTimeout

	client := cache.NewRedisClient(cacheConfig)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, continuing without it",
			slog.String("addr", cacheConfig.Addr),
			slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}

	log.Info("redis connected", slog.String("addr", cacheConfig.Addr))
	return client
}
