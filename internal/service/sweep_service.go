package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/observability"
	"github.com/ticketsla/sla-engine/internal/repository"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

// SweepLockKey is the Redis key shared by every process that runs sweeps.
const SweepLockKey = "ticket-sla:sweep"

// SweepLocker guards against overlapping sweeps across processes.
type SweepLocker interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

// SweepConfig tunes paging and parallelism.
type SweepConfig struct {
	BatchSize   int
	Concurrency int
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int  `json:"scanned"`
	Breached  int  `json:"breached"`
	Recovered int  `json:"recovered"`
	Escalated int  `json:"escalated"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped"`
}

// SweepService re-evaluates every active ticket. It owns no timer; an external
// scheduler invokes RunSLACheck.
type SweepService struct {
	tickets   repository.TicketRepository
	lifecycle *TicketService
	locker    SweepLocker
	cfg       SweepConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// SweepDependencies bundles collaborators for the sweep.
type SweepDependencies struct {
	TicketRepo    repository.TicketRepository
	TicketService *TicketService
	// Locker is optional; nil disables cross-process locking.
	Locker  SweepLocker
	Config  SweepConfig
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewSweepService creates the service.
func NewSweepService(deps SweepDependencies) *SweepService {
	cfg := deps.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepService{
		tickets:   deps.TicketRepo,
		lifecycle: deps.TicketService,
		locker:    deps.Locker,
		cfg:       cfg,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

// RunSLACheck evaluates every OPEN/IN_PROGRESS ticket. Per-ticket failures are
// counted and logged; only a failure to list tickets or take the lock aborts the sweep.
func (s *SweepService) RunSLACheck(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	started := time.Now()
	defer func() { s.metrics.Sweep(time.Since(started)) }()

	if s.locker != nil {
		release, acquired, err := s.locker.TryAcquire(ctx)
		if err != nil {
			return result, apperrors.NewDependencyFailure("sweep lock", err)
		}
		if !acquired {
			s.logger.Info("sla sweep already running elsewhere; skipping")
			result.Skipped = true
			return result, nil
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.Warn("release sweep lock", zap.Error(err))
			}
		}()
	}

	filter := repository.TicketFilter{
		Statuses:    domain.ActiveStatuses,
		OldestFirst: true,
		Limit:       s.cfg.BatchSize,
	}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		page, err := s.tickets.ListWithFilter(ctx, filter)
		if err != nil {
			return result, apperrors.NewDependencyFailure("ticket store", err)
		}
		s.evaluatePage(ctx, page, &result)
		if len(page) < s.cfg.BatchSize {
			break
		}
		filter.After = repository.CursorAfter(page[len(page)-1])
	}

	s.logger.Info("sla sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("breached", result.Breached),
		zap.Int("recovered", result.Recovered),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(started)))
	return result, nil
}

func (s *SweepService) evaluatePage(ctx context.Context, page []domain.Ticket, result *SweepResult) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i := range page {
		ticket := page[i]
		g.Go(func() error {
			_, outcome, err := s.lifecycle.evaluate(gctx, &ticket)

			mu.Lock()
			defer mu.Unlock()
			result.Scanned++
			switch {
			case err != nil:
				result.Failed++
				s.metrics.SweepTicket("failed")
				s.logger.Warn("sla evaluation failed",
					zap.String("ticket_id", ticket.ID),
					zap.Error(err))
			case outcome.Transitioned && outcome.Breached:
				result.Breached++
				if outcome.Escalated {
					result.Escalated++
				}
				s.metrics.SweepTicket("breached")
			case outcome.Transitioned:
				result.Recovered++
				s.metrics.SweepTicket("recovered")
			default:
				s.metrics.SweepTicket("unchanged")
			}
			// Per-ticket failures never cancel the rest of the page.
			return nil
		})
	}
	_ = g.Wait()
}
