package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/events"
	"github.com/spec-kit/karteji/internal/service"
)

// StartNotificationWorker registers notification handlers and, when configured,
// forwards every event to the Kafka sink.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, sink *events.KafkaSink, logger *zap.Logger) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if dispatcher == nil || sink == nil {
		return
	}
	dispatcher.SubscribeAll(sink.Handle)
	if logger != nil {
		logger.Info("forwarding member events to kafka")
	}
}
