package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/events"
	"github.com/spec-kit/support-iq/internal/service"
)

// StartNotificationWorker registers notification handlers and an event log
// that records every pipeline event at debug level.
func StartNotificationWorker(notificationService *service.NotificationService, dispatcher events.Dispatcher, logger *zap.Logger) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if dispatcher == nil || logger == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, func(_ context.Context, event events.Event) error {
			logger.Debug("pipeline event",
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
			)
			return nil
		})
	}
}
