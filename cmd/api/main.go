package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ticketsla/sla-engine/internal/api/dto"
	httptransport "github.com/ticketsla/sla-engine/internal/api/http"
	"github.com/ticketsla/sla-engine/internal/api/http/handlers"
	"github.com/ticketsla/sla-engine/internal/auth"
	"github.com/ticketsla/sla-engine/internal/clock"
	"github.com/ticketsla/sla-engine/internal/config"
	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/events"
	"github.com/ticketsla/sla-engine/internal/notify"
	"github.com/ticketsla/sla-engine/internal/observability"
	"github.com/ticketsla/sla-engine/internal/persistence"
	"github.com/ticketsla/sla-engine/internal/repository"
	"github.com/ticketsla/sla-engine/internal/service"
	"github.com/ticketsla/sla-engine/internal/sla"
	"github.com/ticketsla/sla-engine/internal/worker"
)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policies, err := sla.LoadPolicyTable(cfg.SLA.PolicyFile)
	if err != nil {
		logger.Fatal("failed to load sla policy table", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	alerts, closeAlerts, err := notify.NewAlertPublisherFromConfig(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("failed to init alert publisher", zap.Error(err))
	}
	defer closeAlerts() //nolint:errcheck

	analyzer, closeAnalyzer, err := notify.NewSentimentAnalyzerFromConfig(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("failed to init sentiment analyzer", zap.Error(err))
	}
	defer closeAnalyzer() //nolint:errcheck

	sentiment := worker.NewSentimentQueue(analyzer, worker.SentimentQueueConfig{
		Size:    cfg.Sentiment.QueueSize,
		Workers: cfg.Sentiment.Workers,
		Timeout: cfg.Sentiment.Timeout(),
	}, logger, metrics)
	sentiment.Start(ctx)

	dispatcher := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(dispatcher, alerts, logger, metrics, cfg.Notification)
	notificationService.RegisterHandlers()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)

	balancer := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: ticketRepo,
		AgentRepo:  repository.NewAgentRepository(pool),
		AgentRoles: domain.ParseStaffRoles(cfg.SLA.AgentRoles),
		Metrics:    metrics,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:              ticketRepo,
		CommentRepo:             repository.NewCommentRepository(pool),
		HistoryRepo:             repository.NewTicketHistoryRepository(pool),
		Balancer:                balancer,
		Policies:                policies,
		Clock:                   clock.System{},
		Dispatcher:              dispatcher,
		Sentiment:               sentiment,
		Logger:                  logger,
		Metrics:                 metrics,
		RestampOnPriorityChange: cfg.SLA.RestampOnPriorityChange,
	})
	sweepService := service.NewSweepService(service.SweepDependencies{
		TicketRepo:    ticketRepo,
		TicketService: ticketService,
		Locker:        sweepLocker(redis, cfg.Sweep),
		Config:        service.SweepConfig{BatchSize: cfg.Sweep.BatchSize, Concurrency: cfg.Sweep.Concurrency},
		Logger:        logger,
		Metrics:       metrics,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthChecks(pg, redis, alerts)...),
		Tickets:        handlers.NewTicketsHandler(ticketService, dto.NewValidator()),
		Agents:         handlers.NewAgentsHandler(balancer),
		SLA:            handlers.NewSLAHandler(sweepService, ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := sentiment.Stop(shutdownCtx); err != nil {
		logger.Warn("sentiment queue did not drain", zap.Error(err))
	}
}

// healthChecks lists readiness probes. Only Postgres gates readiness; Redis backs the
// sweep lock and the alert breaker only affects delivery.
func healthChecks(pg *persistence.Postgres, redis *persistence.Redis, alerts notify.AlertPublisher) []handlers.DependencyCheck {
	checks := []handlers.DependencyCheck{{Name: "postgres", Ping: pg.Ping}}

	redisCheck := handlers.DependencyCheck{Name: "redis", Optional: true}
	if redis != nil {
		redisCheck.Ping = redis.Ping
	}
	alertCheck := handlers.DependencyCheck{Name: "alerts", Optional: true}
	if broker, ok := alerts.(*notify.BrokerAlertPublisher); ok {
		alertCheck.Ping = broker.Check
	}
	return append(checks, redisCheck, alertCheck)
}

// sweepLocker avoids handing the sweep a typed-nil *Lock when there is no Redis client.
func sweepLocker(redis *persistence.Redis, cfg config.SweepConfig) service.SweepLocker {
	lock := redis.Lease(service.SweepLockKey, cfg.LockTTL())
	if lock == nil {
		return nil
	}
	return lock
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
