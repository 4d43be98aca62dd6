// Package notify delivers escalation alerts and sentiment-analysis requests to
// downstream collaborators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Alert kinds.
const (
	AlertKindBreached  = "sla_breached"
	AlertKindRecovered = "sla_recovered"
)

// Alert is the payload sent when a ticket's breach flag flips. Recovery alerts
// carry the current priority in both priority fields.
type Alert struct {
	Kind             string    `json:"kind"`
	TicketID         string    `json:"ticket_id"`
	OldPriority      string    `json:"old_priority"`
	NewPriority      string    `json:"new_priority"`
	Escalated        bool      `json:"escalated"`
	Severity         string    `json:"severity"`
	ResponseBreached bool      `json:"response_breached"`
	ResolveBreached  bool      `json:"resolve_breached"`
	ElapsedMinutes   int       `json:"elapsed_minutes"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// AlertPublisher delivers alerts.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert Alert) error
}

// JSONProducer is the subset of KafkaProducer the publishers need.
type JSONProducer interface {
	ProduceJSON(ctx context.Context, key string, v any) error
}

// ErrCircuitOpen is returned while the breaker rejects deliveries.
var ErrCircuitOpen = errors.New("notify: alert circuit open")

// BreakerSettings tunes the alert circuit breaker.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultBreakerSettings returns the settings used in production.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MaxRequests: 10, Interval: 10 * time.Second, Timeout: 30 * time.Second}
}

// BrokerAlertPublisher sends alerts through a producer guarded by a circuit breaker.
type BrokerAlertPublisher struct {
	producer JSONProducer
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewBrokerAlertPublisher wires producer behind a breaker that trips once at
// least three requests in an interval fail at a 60% ratio.
func NewBrokerAlertPublisher(producer JSONProducer, settings BreakerSettings, logger *zap.Logger) *BrokerAlertPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sla-alert-publisher",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("alert circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BrokerAlertPublisher{producer: producer, breaker: cb, logger: logger}
}

// PublishAlert sends alert keyed by ticket id.
func (p *BrokerAlertPublisher) PublishAlert(ctx context.Context, alert Alert) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.producer.ProduceJSON(ctx, alert.TicketID, alert)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

// Check reports ErrCircuitOpen while the breaker rejects deliveries; it is used as a
// readiness probe.
func (p *BrokerAlertPublisher) Check(context.Context) error {
	if p.breaker.State() == gobreaker.StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// LogAlertPublisher records alerts in the log only. Used when no broker is configured.
type LogAlertPublisher struct {
	logger *zap.Logger
}

// NewLogAlertPublisher builds a log-only publisher.
func NewLogAlertPublisher(logger *zap.Logger) *LogAlertPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlertPublisher{logger: logger}
}

// PublishAlert logs the alert.
func (p *LogAlertPublisher) PublishAlert(_ context.Context, alert Alert) error {
	p.logger.Info("sla escalation alert",
		zap.String("kind", alert.Kind),
		zap.String("ticket_id", alert.TicketID),
		zap.String("old_priority", alert.OldPriority),
		zap.String("new_priority", alert.NewPriority),
		zap.Bool("escalated", alert.Escalated),
		zap.String("severity", alert.Severity))
	return nil
}
