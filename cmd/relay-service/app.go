package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/lib/pq" // PostgreSQL driver

	"rustok/internal/bus"
	"rustok/internal/config"
	"rustok/internal/constants"
	"rustok/internal/event"
	"rustok/internal/logger"
	"rustok/internal/outbox"
	"rustok/internal/relay"
	"rustok/internal/transport"
	"rustok/pkg/bootstrap"
	"rustok/pkg/health"
	"rustok/pkg/metrics"
	"rustok/pkg/middleware"
	"rustok/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	mongoClient    *mongo.Client
	eventBus       *bus.Bus
	transport      transport.Transport
	worker         *relay.Worker
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
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize relay pipeline: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, "relay-service")
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

	if a.config.Database.MongoDB.URI != "" {
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		mongoClient, err := a.dbConnector.InitMongoDB(initCtx)
		if err != nil {
			a.logger.WarnwCtx(ctx, "MongoDB connection failed, dead-letter archiving disabled", "error", err)
		} else {
			a.mongoClient = mongoClient
		}
	}
	return nil
}

// initPipeline builds bus, transport and worker. A bad transport name
// or an unreachable broker aborts the boot; there is no silent
// degradation into a different transport.
func (a *App) initPipeline(ctx context.Context) error {
	a.eventBus = bus.New(a.config.Bus, a.logger)

	// Consumers of locally delivered events attach here. The wildcard
	// subscriber keeps a delivery trail even with no domain handlers
	// registered on this instance.
	a.eventBus.Subscribe(bus.Wildcard, func(ctx context.Context, env event.Envelope) error {
		a.logger.InfowCtx(ctx, "event delivered",
			"event_type", env.EventType,
			"event_id", env.EventID.String(),
			"sequence", env.Sequence,
		)
		return nil
	})

	tr, err := transport.New(a.config.Event, a.eventBus, a.logger)
	if err != nil {
		return err
	}
	a.transport = tr

	var archive relay.Archiver
	if a.mongoClient != nil {
		db := a.mongoClient.Database(a.config.Database.MongoDB.Database)
		archive = outbox.NewDeadLetterArchive(db, a.logger)
	}

	repo := outbox.NewPostgresRepository(a.db)
	a.worker = relay.NewWorker(a.config.Relay, repo, tr, archive, a.logger)
	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	metrics.RegisterBusMetrics()
	metrics.RegisterOutboxMetrics()
	metrics.RegisterRelayMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.config.Event.Transport == config.TransportExternalBroker {
		healthRegistry.Register(health.NewKafkaChecker(a.config.Event.Kafka.Brokers[0]))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
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
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: a.router,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	a.worker.Start(ctx)

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
	a.logger.InfowCtx(ctx, "Shutting down relay service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	// Let an in-flight batch finish before the transport goes away.
	if a.worker != nil {
		a.worker.Stop()
	}

	if a.transport != nil {
		if err := a.transport.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("transport shutdown error: %w", err))
		}
	}

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(ctx, nil, a.db, a.mongoClient)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Relay service exited successfully")
	return nil
}
