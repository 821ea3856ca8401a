package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/events"
)

// NotificationService is the notification collaborator: it logs pipeline
// events and hands escalations and alerts to the configured channels.
// Delivery itself is out of process.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketAccepted, n.handleTicketAccepted)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketHalted, n.handleTicketHalted)
	n.dispatcher.Subscribe(events.EventGhostTicketAlert, n.handleGhostTicketAlert)
	n.dispatcher.Subscribe(events.EventThresholdAdjusted, n.handleThresholdAdjusted)
	n.dispatcher.Subscribe(events.EventKBDraftReady, n.handleKBDraftReady)
}

func (n *NotificationService) handleTicketAccepted(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAccepted", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	n.logger.Warn("TicketEscalated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendChatNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketHalted(ctx context.Context, event events.Event) error {
	n.logger.Error("TicketHalted", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleGhostTicketAlert(ctx context.Context, event events.Event) error {
	n.logger.Warn("GhostTicketAlert", zap.Any("payload", event.Payload))
	n.sendChatNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleThresholdAdjusted(ctx context.Context, event events.Event) error {
	n.logger.Info("ThresholdAdjusted", zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleKBDraftReady(ctx context.Context, event events.Event) error {
	n.logger.Info("KBDraftReady", zap.Any("payload", event.Payload))
	n.sendChatNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendChatNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.ChatChannel) == "" {
		return
	}
	n.logger.Debug("sendChatNotificationStub",
		zap.String("channel", n.cfg.ChatChannel),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
