// Command sla-sweep runs one SLA sweep over every active ticket and exits.
// Schedule it externally (cron, Kubernetes CronJob); overlapping runs skip via the Redis lock.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

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
)

func main() {
	noLock := flag.Bool("no-lock", false, "skip the distributed sweep lock")
	flag.Parse()

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

	if err := run(ctx, cfg, logger, !*noLock); err != nil {
		logger.Error("sla sweep failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, useLock bool) error {
	policies, err := sla.LoadPolicyTable(cfg.SLA.PolicyFile)
	if err != nil {
		return err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()
	pool := pg.PoolHandle()
	if pool == nil {
		return fmt.Errorf("sla sweep needs POSTGRES_DSN: %w", persistence.ErrNoDatabase)
	}

	alerts, closeAlerts, err := notify.NewAlertPublisherFromConfig(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer closeAlerts() //nolint:errcheck

	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, alerts, logger, nil, cfg.Notification).RegisterHandlers()

	ticketRepo := repository.NewTicketRepository(pool)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: repository.NewCommentRepository(pool),
		HistoryRepo: repository.NewTicketHistoryRepository(pool),
		Balancer: service.NewAssignmentService(service.AssignmentDependencies{
			TicketRepo: ticketRepo,
			AgentRepo:  repository.NewAgentRepository(pool),
			AgentRoles: domain.ParseStaffRoles(cfg.SLA.AgentRoles),
		}),
		Policies:                policies,
		Clock:                   clock.System{},
		Dispatcher:              dispatcher,
		Logger:                  logger,
		RestampOnPriorityChange: cfg.SLA.RestampOnPriorityChange,
	})

	deps := service.SweepDependencies{
		TicketRepo:    ticketRepo,
		TicketService: ticketService,
		Config:        service.SweepConfig{BatchSize: cfg.Sweep.BatchSize, Concurrency: cfg.Sweep.Concurrency},
		Logger:        logger,
	}
	if useLock {
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		if lock := redis.Lease(service.SweepLockKey, cfg.Sweep.LockTTL()); lock != nil {
			deps.Locker = lock
		}
	}

	result, err := service.NewSweepService(deps).RunSLACheck(ctx)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}
