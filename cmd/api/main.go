package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/portal-session/internal/api/http"
	"github.com/spec-kit/portal-session/internal/api/http/handlers"
	"github.com/spec-kit/portal-session/internal/auth"
	"github.com/spec-kit/portal-session/internal/clock"
	"github.com/spec-kit/portal-session/internal/config"
	"github.com/spec-kit/portal-session/internal/events"
	"github.com/spec-kit/portal-session/internal/identity"
	"github.com/spec-kit/portal-session/internal/inference"
	"github.com/spec-kit/portal-session/internal/observability"
	"github.com/spec-kit/portal-session/internal/persistence"
	"github.com/spec-kit/portal-session/internal/repository"
	"github.com/spec-kit/portal-session/internal/service"
	"github.com/spec-kit/portal-session/internal/session"
	"github.com/spec-kit/portal-session/internal/worker"
	"github.com/spec-kit/portal-session/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	readiness := map[string]handlers.Pinger{"redis": redis}
	if pg.PoolHandle() != nil {
		readiness["postgres"] = pg
	}

	var stores repository.IdentityStores
	switch cfg.Identity.Backend {
	case config.BackendMongo:
		mongo, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			logger.Fatal("failed to connect mongo", zap.Error(err))
		}
		defer mongo.Close(context.Background())
		if mongo.Database == nil {
			logger.Fatal("IDENTITY_BACKEND=mongo requires MONGODB_URL")
		}
		readiness["mongo"] = mongo
		stores = repository.NewMongoIdentityStores(mongo.Database)
	case config.BackendMemory:
		logger.Warn("using in-memory identity partitions")
		stores, _ = repository.NewMemoryIdentityStores()
	default:
		if pg.PoolHandle() == nil {
			logger.Fatal("IDENTITY_BACKEND=postgres requires POSTGRES_DSN")
		}
		stores = repository.NewPostgresIdentityStores(pg.PoolHandle())
	}
	stores = repository.WithCache(stores, redis.Handle(), cfg.Redis.CacheTTL, logger)

	var creds repository.CredentialRepository
	if pool := pg.PoolHandle(); pool != nil {
		creds = repository.NewCredentialRepository(pool)
	} else {
		logger.Warn("no postgres pool; credential store is empty and every login will be rejected")
		creds = repository.NewMemoryCredentialRepository()
	}

	clk := clock.NewSystemClock()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.RegisterAuditHandlers(service.NewNotificationService(dispatcher, logger))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(), clk)
	sessionService := service.NewSessionService(service.SessionDependencies{
		Verifier:   auth.NewPasswordVerifier(creds, logger),
		Resolver:   identity.NewResolver(stores, identity.WithClock(clk), identity.WithLogger(logger)),
		Store:      session.NewStore(session.WithStoreClock(clk)),
		Tokens:     tokens,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      clk,
		Logger:     logger,
		Deadline:   cfg.Identity.ResolveDeadline,
	})
	defer sessionService.Store().Close()

	monitor := inference.NewProbeMonitor(cfg.Reachability.ProbeAddr, cfg.Reachability.Interval, logger)
	inferenceClient := inference.NewClient(
		inference.WithReachability(monitor),
		inference.WithLogger(logger),
		inference.WithAttemptTimeout(cfg.Inference.AttemptTimeout),
		inference.WithRetryHook(func(int, time.Duration, error) { metrics.RecordRetry() }),
	)
	assistantService := service.NewAssistantService(inferenceClient, cfg.Inference, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Session:        handlers.NewSessionHandler(sessionService),
		Assistant:      handlers.NewAssistantHandler(assistantService),
		Metrics:        handlers.NewMetricsHandler(metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, sessionService),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		return worker.RunReachabilityMonitor(gctx, monitor, logger)
	})
	g.Go(func() error {
		return worker.RunSessionObserver(gctx, sessionService.Store(), metrics, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sessionService.Logout(context.Background())
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped with error", zap.Error(err))
	}
}
