package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/blog-service/internal/service"
)

// StartNotificationWorker registers account event handlers on the dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		logger.Warn("notification service not configured; account events are dropped")
		return
	}
	notificationService.RegisterHandlers()
	logger.Info("notification worker started")
}
