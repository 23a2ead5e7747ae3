package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"eventgate/internal/admission"
	"eventgate/internal/api"
	"eventgate/internal/broker"
	"eventgate/internal/config"
	"eventgate/internal/config_handler"
	"eventgate/internal/constants"
	"eventgate/internal/delivery"
	"eventgate/internal/logger"
	"eventgate/internal/routing"
	"eventgate/pkg/bootstrap"
	"eventgate/pkg/health"
	"eventgate/pkg/logging"
	"eventgate/pkg/metrics"
	"eventgate/pkg/middleware"
	"eventgate/pkg/models"
	"eventgate/pkg/ratelimit"
	"eventgate/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client

	router         *routing.Router
	loader         *routing.Loader
	admission      *admission.Registry
	admissionStats admission.StatsStore
	clientLimiter  *ratelimit.ClientLimiter
	configConsumer broker.Consumer
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterAll()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker(constants.ServiceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initAdmission()

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Redis connection failed, admission stats kept in memory", "error", err)
	} else {
		a.redisClient = rdb
	}

	mongoCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	mongoClient, err := a.dbConnector.InitMongoDB(mongoCtx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "MongoDB connection failed, mongo routes disabled", "error", err)
	} else {
		a.mongoClient = mongoClient
	}
	return nil
}

func (a *App) initAdmission() {
	statsCfg := a.Config.Admission.Stats

	var store admission.StatsStore = admission.NewMemoryStatsStore()
	if statsCfg.Enabled && a.redisClient != nil {
		store = admission.NewRedisStatsStore(a.redisClient,
			admission.WithStatsPrefix(statsCfg.Prefix),
			admission.WithStatsTTL(time.Duration(statsCfg.TTLSeconds)*time.Second),
			admission.WithStatsTrackKeys(statsCfg.TrackKeys),
		)
	}

	a.admission = admission.NewRegistry(a.Config.Admission, a.Logger, admission.WithStatsStore(store))
	a.admissionStats = store
	// Build the two built-in endpoints up front so they show in the admin API.
	a.admission.Limiter(constants.EndpointWebhook)
	a.admission.Limiter(constants.EndpointKafka)
}

func (a *App) initRouter(ctx context.Context) error {
	rc := a.Config.Router

	a.router = routing.NewRouter(
		routing.WithLogger(a.Logger),
		routing.WithWorkers(rc.Workers),
		routing.WithQueueCapacity(rc.QueueCapacity),
		routing.WithPollInterval(rc.PollInterval),
		routing.WithRetryDelays(rc.Retry.BaseDelay, rc.Retry.MaxDelay),
		routing.WithCompletionHook(a.onEventDone),
	)

	factory := delivery.NewFactory(delivery.Dependencies{
		Producer:       a.Producer,
		Mongo:          a.mongoClient,
		CircuitBreaker: a.Config.CircuitBreaker,
		Logger:         a.Logger,
	})

	var repo routing.Repository
	if a.db != nil {
		repo = routing.NewRepository(a.db)
	}

	interval := time.Duration(rc.Reload.IntervalSeconds) * time.Second
	loader, err := routing.NewLoader(a.router, repo, rc.Routes, factory, interval, a.Logger)
	if err != nil {
		return err
	}
	a.loader = loader

	if err := loader.ReloadRoutes(ctx); err != nil {
		a.Logger.WarnwCtx(ctx, "Some routes failed to load", "error", err)
	}

	a.router.Start()
	return nil
}

func (a *App) onEventDone(ev routing.ProcessedEvent) {
	if ev.Status == routing.StatusFailed {
		a.Logger.Warnw("Event failed",
			"event_id", ev.ID,
			"route", ev.RouteName,
			"error", ev.ErrorMessage,
			"retry_count", ev.RetryCount,
		)
		return
	}
	a.Logger.Debugw("Event done",
		"event_id", ev.ID,
		"route", ev.RouteName,
		"status", string(ev.Status),
	)
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if a.Config.Tracing.Enabled {
		engine.Use(tracing.GinMiddleware(constants.ServiceName))
	}
	engine.Use(middleware.RecoveryMiddleware(a.Logger))
	engine.Use(middleware.LoggerMiddleware(a.Logger))
	engine.Use(middleware.RequestIDMiddleware())

	events := api.NewHandler(a.router, a.admission, a.Logger)
	if reader, ok := a.admissionStats.(admission.StatsReader); ok {
		events.WithStats(reader)
	}
	events.RegisterRoutes(engine)

	var notifier api.RouteNotifier
	if a.Producer != nil && a.Config.Broker.Kafka.ConfigUpdateTopic != "" {
		notifier = config_handler.NewPublisher(a.Producer, a.Config.Broker.Kafka.ConfigUpdateTopic)
	}

	var repo routing.Repository
	var audit routing.AuditRepository
	if a.db != nil {
		repo = routing.NewRepository(a.db)
		audit = routing.NewAuditRepository(a.db)
	}

	var mgmt []gin.HandlerFunc
	if rl := a.Config.Management.RateLimit; rl.Enabled {
		a.clientLimiter = ratelimit.NewClientLimiter(ratelimit.FromConfig(rl))
		mgmt = append(mgmt, a.clientLimiter.Middleware())
		a.Logger.Infow("Management rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}
	routes := api.NewRouteHandler(a.router, a.loader, repo, notifier, a.Logger)
	if audit != nil {
		routes.WithAudit(audit)
	}
	routes.RegisterRoutes(engine, mgmt...)

	checks := health.NewCheckerRegistry()
	checks.Register(health.NewRouterChecker(a.router))
	if a.db != nil {
		checks.Register(health.NewPostgreSQLChecker(a.db))
	}
	if a.redisClient != nil {
		checks.RegisterOptional(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		checks.RegisterOptional(health.NewMongoDBChecker(a.mongoClient))
	}
	api.RegisterSystemRoutes(engine, checks)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return ignoreCanceled(a.loader.StartReloader(gCtx))
	})

	cleanup := time.Duration(a.Config.Admission.CleanupIntervalSeconds) * time.Second
	g.Go(func() error {
		return a.admission.StartJanitor(gCtx, cleanup)
	})

	if a.clientLimiter != nil {
		g.Go(func() error {
			return a.clientLimiter.Run(gCtx)
		})
	}

	if a.Consumer != nil {
		if topic := a.Config.Broker.Kafka.InputTopic; topic != "" {
			g.Go(func() error {
				a.Logger.InfowCtx(gCtx, "Starting event consumer", "topic", topic)
				return a.Consumer.Consume(gCtx, topic, a.handleMessage)
			})
		}
		a.startConfigConsumer(g, gCtx)
	}

	return g.Wait()
}

// startConfigConsumer subscribes to route change notices. Each instance uses
// its own group so every replica reloads.
func (a *App) startConfigConsumer(g *errgroup.Group, ctx context.Context) {
	topic := a.Config.Broker.Kafka.ConfigUpdateTopic
	if topic == "" {
		return
	}

	kcfg := a.Config.Broker.Kafka
	kcfg.GroupID = fmt.Sprintf("%s-config-%s", kcfg.GroupID, instanceID())
	kcfg.DLQTopic = ""
	a.configConsumer = broker.NewKafkaConsumer(kcfg, constants.ServiceName, a.Logger)

	handler := config_handler.NewHandler(constants.ConfigEventRouteUpdated, constants.ConfigServiceRouter, a.loader, a.Logger)

	g.Go(func() error {
		configCtx := logging.WithServiceName(ctx, constants.ServiceName)
		a.Logger.InfowCtx(configCtx, "Starting config update event consumer", "topic", topic)
		return a.configConsumer.Consume(ctx, topic, handler.HandleConfigUpdateEvent)
	})
}

// handleMessage admits a Kafka event and queues it. Only a full or closed
// queue is reported back, so the consumer retries and then dead-letters it.
func (a *App) handleMessage(ctx context.Context, env models.EventEnvelope) error {
	ctx = logging.WithSource(logging.WithEventID(ctx, env.ID), env.Source)

	if allowed, reason := a.admission.Limiter(constants.EndpointKafka).Check(ctx, env.Source); !allowed {
		a.Logger.WarnwCtx(ctx, "Kafka event rejected by admission", "reason", reason)
		return nil
	}

	ev := a.router.RouteEvent(ctx, env.Payload, env.Source, env.EventType, env.ID, true)
	if err := routing.ErrorFor(ev); err != nil {
		a.Logger.WarnwCtx(ctx, "Kafka event not queued", "error", err)
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down router service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.configConsumer != nil {
			if err := a.configConsumer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("config consumer close error: %w", err))
			}
		}

		if a.router != nil {
			if err := a.router.Shutdown(constants.ShutdownTimeout); err != nil {
				errs = append(errs, fmt.Errorf("router shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}

func instanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
