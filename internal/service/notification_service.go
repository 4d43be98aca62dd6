package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ticketsla/sla-engine/internal/config"
	"github.com/ticketsla/sla-engine/internal/events"
	"github.com/ticketsla/sla-engine/internal/notify"
	"github.com/ticketsla/sla-engine/internal/observability"
)

// NotificationService turns domain events into outbound notifications. Breach and
// recovery transitions go to the alert publisher; the rest are logged and sent to stubs.
type NotificationService struct {
	dispatcher events.Dispatcher
	alerts     notify.AlertPublisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, alerts notify.AlertPublisher, logger *zap.Logger, metrics *observability.Metrics, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		alerts:     alerts,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketSLABreached, n.handleSLABreached)
	n.dispatcher.Subscribe(events.EventTicketSLARecovered, n.handleSLARecovered)
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
}

func (n *NotificationService) handleSLABreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketSLABreachedPayload)
	if !ok || n.alerts == nil {
		return nil
	}
	alert := notify.Alert{
		Kind:             notify.AlertKindBreached,
		TicketID:         event.TicketID,
		OldPriority:      string(payload.OldPriority),
		NewPriority:      string(payload.NewPriority),
		Escalated:        payload.Escalated,
		Severity:         payload.Severity,
		ResponseBreached: payload.ResponseBreached,
		ResolveBreached:  payload.ResolveBreached,
		ElapsedMinutes:   payload.ElapsedMinutes,
		OccurredAt:       event.Timestamp,
	}
	n.publishAlert(ctx, alert)
	return nil
}

func (n *NotificationService) handleSLARecovered(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketSLARecovered", zap.String("ticket_id", event.TicketID))
	payload, ok := event.Payload.(events.TicketSLARecoveredPayload)
	if !ok || n.alerts == nil {
		return nil
	}
	n.publishAlert(ctx, notify.Alert{
		Kind:        notify.AlertKindRecovered,
		TicketID:    event.TicketID,
		OldPriority: string(payload.Priority),
		NewPriority: string(payload.Priority),
		Severity:    "info",
		OccurredAt:  event.Timestamp,
	})
	return nil
}

// publishAlert never fails the caller; delivery problems are counted and logged.
func (n *NotificationService) publishAlert(ctx context.Context, alert notify.Alert) {
	if err := n.alerts.PublishAlert(ctx, alert); err != nil {
		n.metrics.SideEffectFailure("alert")
		n.logger.Error("sla alert delivery failed",
			zap.String("kind", alert.Kind),
			zap.String("ticket_id", alert.TicketID),
			zap.String("severity", alert.Severity),
			zap.Error(err))
	}
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAssigned", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
