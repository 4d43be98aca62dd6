package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ticketsla/sla-engine/internal/notify"
	"github.com/ticketsla/sla-engine/internal/observability"
)

// SentimentQueueConfig sizes the queue.
type SentimentQueueConfig struct {
	Size    int
	Workers int
	Timeout time.Duration
}

// SentimentQueue hands comments to the sentiment analyzer without blocking the caller.
// Requests that do not fit in the buffer are dropped; failed analyses are logged, never retried.
type SentimentQueue struct {
	analyzer notify.SentimentAnalyzer
	jobs     chan notify.SentimentRequest
	workers  int
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	start   sync.Once
}

// NewSentimentQueue builds a queue; call Start before enqueueing.
func NewSentimentQueue(analyzer notify.SentimentAnalyzer, cfg SentimentQueueConfig, logger *zap.Logger, metrics *observability.Metrics) *SentimentQueue {
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SentimentQueue{
		analyzer: analyzer,
		jobs:     make(chan notify.SentimentRequest, cfg.Size),
		workers:  cfg.Workers,
		timeout:  cfg.Timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start launches the workers. ctx bounds in-flight analyses.
func (q *SentimentQueue) Start(ctx context.Context) {
	q.start.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.run(ctx)
		}
	})
}

// Enqueue submits req and reports whether it was accepted.
func (q *SentimentQueue) Enqueue(req notify.SentimentRequest) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return false
	}
	select {
	case q.jobs <- req:
		return true
	default:
		q.metrics.SentimentDropped()
		q.logger.Warn("sentiment queue full; dropping request",
			zap.String("comment_id", req.CommentID),
			zap.String("ticket_id", req.TicketID))
		return false
	}
}

// Stop rejects new requests and waits for queued ones to drain or ctx to expire.
func (q *SentimentQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SentimentQueue) run(ctx context.Context) {
	defer q.wg.Done()
	for req := range q.jobs {
		q.process(ctx, req)
	}
}

func (q *SentimentQueue) process(ctx context.Context, req notify.SentimentRequest) {
	attemptCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if err := q.analyzer.Analyze(attemptCtx, req); err != nil {
		q.metrics.SideEffectFailure("sentiment")
		q.logger.Warn("sentiment analysis failed",
			zap.String("comment_id", req.CommentID),
			zap.String("ticket_id", req.TicketID),
			zap.Error(err))
	}
}
