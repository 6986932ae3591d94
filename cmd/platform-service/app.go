package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // PostgreSQL driver

	"rustok/internal/bus"
	"rustok/internal/config"
	"rustok/internal/constants"
	"rustok/internal/event"
	"rustok/internal/logger"
	"rustok/internal/outbox"
	"rustok/internal/tenant"
	"rustok/pkg/bootstrap"
	"rustok/pkg/health"
	"rustok/pkg/metrics"
	"rustok/pkg/middleware"
	"rustok/pkg/ratelimit"
	"rustok/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	eventBus       *bus.Bus
	cache          tenant.Cache
	broadcaster    *tenant.Broadcaster
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	// An unknown transport must stop the boot here, before any
	// connection is opened.
	if err := config.ValidateTransport(a.config.Event.Transport); err != nil {
		return err
	}

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	a.eventBus = bus.New(a.config.Bus, a.logger)

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, "platform-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "Redis unavailable, tenant cache falls back to in-memory", "error", err)
	} else {
		a.redisClient = redisClient
	}
	return nil
}

func (a *App) initCache(ctx context.Context) tenant.Cache {
	ttl := time.Duration(a.config.TenantCache.TTLSeconds) * time.Second
	negativeTTL := time.Duration(a.config.TenantCache.NegativeTTLSeconds) * time.Second

	if a.config.TenantCache.Backend == config.CacheBackendRedis && a.redisClient != nil {
		return tenant.NewRedisCache(a.redisClient, ttl, negativeTTL)
	}

	if a.config.TenantCache.Backend == config.CacheBackendRedis {
		a.logger.WarnwCtx(ctx, "redis cache backend configured but unavailable, using in-memory fallback")
	}
	return tenant.NewMemoryCache(ttl, negativeTTL)
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("platform-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(ratelimit.Middleware(ratelimit.DefaultConfig()))

	initCtx := context.Background()
	a.cache = a.initCache(initCtx)

	var store tenant.Store = tenant.NewPostgresStore(a.db)
	if a.config.CircuitBreaker.Enabled {
		store = tenant.NewBreakerStore(store, a.config.CircuitBreaker)
	}

	resolver := tenant.NewResolver(a.cache, store, a.config.TenantCache, a.logger)
	publisher := outbox.NewPublisher(a.logger)

	opts := []tenant.ServiceOption{tenant.WithAdvisoryBus(a.eventBus)}
	if a.redisClient != nil {
		a.broadcaster = tenant.NewBroadcaster(a.redisClient, a.config.TenantCache.InvalidationChannel, a.cache, a.logger)
		a.broadcaster.Start(initCtx)
		opts = append(opts, tenant.WithBroadcaster(a.broadcaster))
	}

	svc := tenant.NewService(a.db, publisher, resolver, a.logger, opts...)

	handler := tenant.NewHandler(svc, a.logger)
	handler.RegisterRoutes(router)

	// In-process audit trail for every advisory dispatch.
	a.eventBus.Subscribe(bus.Wildcard, func(ctx context.Context, env event.Envelope) error {
		a.logger.DebugwCtx(ctx, "event dispatched on local bus",
			"event_type", env.EventType,
			"event_id", env.EventID.String(),
		)
		return nil
	})

	metrics.RegisterTenantCacheMetrics()
	metrics.RegisterBusMetrics()
	metrics.RegisterOutboxMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterRateLimitMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.broadcaster != nil {
		a.broadcaster.Stop()
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, nil)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
