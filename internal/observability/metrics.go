package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec

	ticketsCreated   *prometheus.CounterVec
	slaTransitions   *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	assignments      *prometheus.CounterVec
	bulkItems        *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	sweepTickets     *prometheus.CounterVec
	sentimentDropped prometheus.Counter
	sideEffectErrors *prometheus.CounterVec
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP errors by path, method and error code.",
		}, []string{"path", "method", "code"}),
		ticketsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_created_total",
			Help: "Tickets created by priority.",
		}, []string{"priority"}),
		slaTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_sla_transitions_total",
			Help: "SLA breach flag transitions by direction and priority at transition time.",
		}, []string{"direction", "priority"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_escalations_total",
			Help: "Automatic priority escalations.",
		}, []string{"from", "to"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_assignments_total",
			Help: "Ticket assignments by mode and outcome.",
		}, []string{"mode", "outcome"}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_bulk_items_total",
			Help: "Bulk operation items by operation and outcome.",
		}, []string{"operation", "outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticket_sla_sweep_duration_seconds",
			Help:    "Duration of SLA sweeps.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		sweepTickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_sla_sweep_tickets_total",
			Help: "Tickets visited by SLA sweeps by outcome.",
		}, []string{"outcome"}),
		sentimentDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentiment_requests_dropped_total",
			Help: "Sentiment analysis requests dropped because the queue was full.",
		}),
		sideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "side_effect_failures_total",
			Help: "Logged-and-dropped side effect failures.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCount, m.requestDuration, m.errorCount,
		m.ticketsCreated, m.slaTransitions, m.escalations, m.assignments,
		m.bulkItems, m.sweepDuration, m.sweepTickets, m.sentimentDropped, m.sideEffectErrors,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

func (m *Metrics) TicketCreated(priority string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(priority).Inc()
}

// SLATransition records a breach flag flip; breached=false means recovery.
func (m *Metrics) SLATransition(breached bool, priority string) {
	if m == nil {
		return
	}
	direction := "recovered"
	if breached {
		direction = "breached"
	}
	m.slaTransitions.WithLabelValues(direction, priority).Inc()
}

func (m *Metrics) Escalation(from, to string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Assignment(mode, outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) BulkItem(operation, outcome string) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Sweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

func (m *Metrics) SweepTicket(outcome string) {
	if m == nil {
		return
	}
	m.sweepTickets.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SentimentDropped() {
	if m == nil {
		return
	}
	m.sentimentDropped.Inc()
}

func (m *Metrics) SideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.sideEffectErrors.WithLabelValues(kind).Inc()
}
