package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tasktree/backend/internal/cache"
	"tasktree/backend/internal/config"
	"tasktree/backend/internal/database"
	"tasktree/backend/internal/handlers"
	"tasktree/backend/internal/middleware"
	"tasktree/backend/internal/monitoring"
	"tasktree/backend/internal/services"
	"tasktree/backend/internal/session"
	"tasktree/backend/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"
)

type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *database.DatabasePool
	redis   *redis.Client
	cache   *cache.MultiLevelCache
	worker  *worker.Worker
	auditor *worker.QueueAuditRecorder
	limiter *middleware.RateLimiter
	monitor *monitoring.Monitor
	engine  *gin.Engine
	server  *http.Server
	stop    chan struct{}
}

func newApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:     cfg,
		logger:  log,
		monitor: monitoring.NewMonitor(),
		stop:    make(chan struct{}),
	}

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        logger.Warn,
		SlowThreshold:   200 * time.Millisecond,
		Logger:          &log,
	})
	if err != nil {
		return nil, err
	}
	app.pool = pool

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	app.monitor.RegisterHealthCheck("database", func(ctx context.Context) error { return pool.Health() })
	app.monitor.RegisterStats("database", pool.Stats)

	var (
		recorder services.AuditRecorder
		store    session.Store = session.NewMemoryStore()
		l2       *cache.RedisCache
	)
	if cfg.Redis.Enabled {
		app.redis = cache.NewRedisClient(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		client := app.redis
		app.monitor.RegisterHealthCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })

		store = session.NewRedisStore(client)
		app.auditor = worker.NewQueueAuditRecorder(worker.NewJobQueue(client), worker.AuditRecorderConfig{Logger: log})
		recorder = app.auditor
		l2 = cache.NewRedisCacheWithClient(client, &cache.CircuitBreakerConfig{
			MaxFailures:      5,
			Timeout:          30 * time.Second,
			HalfOpenMaxCalls: 1,
			OnStateChange: func(from, to cache.CircuitBreakerState) {
				log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("redis circuit breaker changed state")
			},
		})

		app.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient: client,
			Queues:      cfg.Worker.Queues,
			Logger:      log,
		})
		app.worker.RegisterHandler(worker.JobTypeAuditRecord, worker.AuditRecordHandler(pool.DB))
	} else {
		log.Warn().Msg("redis disabled: audit entries are only logged and selections are kept in memory")
	}

	guard := services.NewAccessGuard(log, recorder)
	var (
		workspaceService services.WorkspaceService = services.NewWorkspaceService(pool.DB, guard, log)
		taskService      services.TaskService      = services.NewTaskService(pool.DB, guard, log)
	)
	if cfg.Cache.Enabled {
		app.cache = cache.NewMultiLevelCache(l2)
		workspaceService = services.NewCachedWorkspaceService(workspaceService, app.cache, cfg.Cache.WorkspaceTTL, log)
		taskService = services.NewCachedTaskService(taskService, app.cache, cfg.Cache.TaskTTL, log)
		app.monitor.RegisterStats("cache", app.cache.Stats)
	}
	selector := session.NewSelector(store, workspaceService, log)

	app.engine = app.routes(
		handlers.NewWorkspaceHandler(workspaceService),
		handlers.NewTaskHandler(taskService),
		handlers.NewSessionHandler(selector),
	)
	app.server = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      app.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

func (a *App) routes(workspaces *handlers.WorkspaceHandler, tasks *handlers.TaskHandler, sessions *handlers.SessionHandler) *gin.Engine {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(a.logger),
		middleware.RecoveryWithLog(),
		a.monitor.MetricsMiddleware(),
		cors.New(cors.Config{
			AllowOrigins:     a.cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)
	a.monitor.RegisterRoutes(router)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(middleware.AuthConfig{
		Secret: a.cfg.Auth.JWTSecret,
		Issuer: a.cfg.Auth.Issuer,
		Leeway: 30 * time.Second,
	}))
	if a.cfg.RateLimit.Enabled {
		a.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin:  a.cfg.RateLimit.RequestsPerMin,
			BurstSize:       a.cfg.RateLimit.BurstSize,
			CleanupInterval: a.cfg.RateLimit.CleanupInterval,
		})
		api.Use(a.limiter.Middleware())
	}
	handlers.RegisterRoutes(api, workspaces, tasks, sessions)
	return router
}

// Start launches the background workers and the HTTP listener. Listener
// errors other than a clean shutdown are sent on the returned channel.
func (a *App) Start() <-chan error {
	if a.auditor != nil {
		a.auditor.Start()
	}
	if a.worker != nil {
		a.worker.Start(a.cfg.Worker.Concurrency)
	}
	if a.limiter != nil {
		go a.limiter.Run(a.stop)
	}

	errs := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.server.Addr).Str("environment", a.cfg.Server.Environment).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
		close(errs)
	}()
	return errs
}

// Shutdown drains HTTP first, then buffered audit entries and the worker,
// then releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	close(a.stop)
	if a.auditor != nil {
		a.auditor.Stop()
	}
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if err := a.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	return errors.Join(errs...)
}
