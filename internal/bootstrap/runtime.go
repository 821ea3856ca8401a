// Package bootstrap assembles the pipeline from configuration. Both the API
// server and the operator CLI start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/support-iq/internal/api/http"
	"github.com/spec-kit/support-iq/internal/api/http/handlers"
	"github.com/spec-kit/support-iq/internal/auth"
	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/critic"
	"github.com/spec-kit/support-iq/internal/events"
	"github.com/spec-kit/support-iq/internal/feedback"
	"github.com/spec-kit/support-iq/internal/inference"
	"github.com/spec-kit/support-iq/internal/observability"
	"github.com/spec-kit/support-iq/internal/persistence"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/internal/repository/memory"
	"github.com/spec-kit/support-iq/internal/resolver"
	"github.com/spec-kit/support-iq/internal/service"
	"github.com/spec-kit/support-iq/internal/surge"
	"github.com/spec-kit/support-iq/internal/triage"
	"github.com/spec-kit/support-iq/internal/worker"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

const shutdownGrace = 15 * time.Second

// Runtime holds every long-lived component.
type Runtime struct {
	Config     *config.Config
	Logger     *zap.Logger
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Store      *repository.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Tickets    *service.TicketService
	Analytics  *service.AnalyticsService
	Knowledge  *service.KnowledgeService
	Auth       *service.AuthService
}

// New connects to the configured stores and builds the pipeline. Without
// POSTGRES_DSN the Knowledge Store is kept in memory.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}

	var store *repository.Store
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		store = repository.NewPostgresStore(pool)
	} else {
		store = memory.NewStore()
	}

	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)

	rt, err := assemble(ctx, cfg, logger, store, rdb)
	if err != nil {
		rdb.Close()
		pg.Close()
		return nil, err
	}
	rt.Postgres = pg
	return rt, nil
}

func assemble(ctx context.Context, cfg *config.Config, logger *zap.Logger, store *repository.Store, rdb *persistence.Redis) (*Runtime, error) {
	policy := retry.Policy{
		MaxTries:        cfg.Pipeline.IOMaxTries,
		InitialInterval: cfg.Pipeline.IOInitialBackoff,
		Timeout:         cfg.Pipeline.IOTimeout,
	}

	client, err := inference.New(cfg.Inference, logger)
	if err != nil {
		return nil, err
	}
	rules, err := critic.LoadRules(cfg.Critic.RulesFile)
	if err != nil {
		return nil, err
	}

	adapter := feedback.NewAdapter(feedback.Dependencies{
		Store:     store,
		Holder:    feedback.NewHolder(cfg.Critic.InitialThreshold, time.Now()),
		Publisher: feedback.NewPublisher(rdb.Client, cfg.Feedback.RedisKey),
		Deduper:   feedback.NewDeduper(rdb.Client, logger),
		Config:    cfg.Feedback,
		Retry:     policy,
		Logger:    logger,
	})
	if err := adapter.Restore(ctx); err != nil {
		logger.Warn("published threshold unavailable; starting from initial value", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notifications, dispatcher, logger)

	tickets := service.NewTicketService(service.TicketDependencies{
		Store: store,
		Scorer: triage.NewScorer(triage.Dependencies{
			Tickets:   store.Tickets,
			Knowledge: store.Knowledge,
			Config:    cfg.Triage,
			Retry:     policy,
			Logger:    logger,
		}),
		Resolver: resolver.New(resolver.Dependencies{
			Knowledge: store.Knowledge,
			Client:    client,
			Articles:  cfg.Pipeline.KnowledgeContextArticles,
			MaxTokens: cfg.Inference.MaxTokens,
			Retry:     policy,
			Logger:    logger,
		}),
		Critic: critic.New(rules, store.Knowledge, logger),
		Predictor: surge.NewPredictor(surge.Dependencies{
			Tickets:     store.Tickets,
			Deployments: store.Deployments,
			Alerts:      store.Alerts,
			Config:      cfg.Surge,
			Retry:       policy,
			Logger:      logger,
		}),
		Feedback:   adapter,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Config:     cfg.Pipeline,
		Retry:      policy,
		Logger:     logger,
	})

	logger.Info("pipeline assembled",
		zap.String("inference", client.Name()),
		zap.Int("max_attempts", cfg.Pipeline.MaxAttempts),
		zap.Int64("max_concurrent", cfg.Pipeline.MaxConcurrent),
		zap.Float64("threshold", adapter.Threshold().Value),
	)

	analytics := service.NewAnalyticsService(store, logger)
	return &Runtime{
		Config:     cfg,
		Logger:     logger,
		Redis:      rdb,
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Tickets:    tickets,
		Analytics:  analytics,
		Knowledge:  service.NewKnowledgeService(store, analytics, dispatcher, policy, logger),
		Auth:       service.NewAuthService(cfg.Auth),
	}, nil
}

// HTTPApp builds the fiber application with every route registered.
func (r *Runtime) HTTPApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               r.Config.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, r.Logger, r.Metrics, r.Config.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(r.Config.App.Name, r.Config.App.Version, r.Postgres, r.Redis, r.Metrics),
		Auth:           handlers.NewAuthHandler(r.Auth),
		Tickets:        handlers.NewTicketsHandler(r.Tickets),
		Signals:        handlers.NewSignalsHandler(r.Tickets),
		Operations:     handlers.NewOperationsHandler(r.Tickets, r.Analytics),
		Knowledge:      handlers.NewKnowledgeHandler(r.Knowledge),
		AuthMiddleware: auth.NewAuthMiddleware(r.Auth.TokenManager(), r.Auth),
	})
	return app
}

// Serve runs the HTTP server and the periodic loops until ctx ends, then
// drains running pipelines.
func (r *Runtime) Serve(ctx context.Context) error {
	app := r.HTTPApp()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.Logger.Info("http server listening", zap.String("addr", r.Config.App.Addr()))
		if err := app.Listen(r.Config.App.Addr()); err != nil {
			return fmt.Errorf("fiber listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return worker.RunFeedbackLoop(gctx, r.Config.Pipeline.FeedbackCycleInterval, r.Tickets, r.Logger)
	})
	g.Go(func() error {
		return worker.RunSurgeLoop(gctx, r.Config.Pipeline.SurgeSweepInterval, r.Tickets, r.Logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return errors.Join(
			app.ShutdownWithContext(shutdownCtx),
			r.Tickets.Shutdown(shutdownCtx),
		)
	})
	return g.Wait()
}

// Close releases store connections.
func (r *Runtime) Close() {
	r.Redis.Close()
	r.Postgres.Close()
}
