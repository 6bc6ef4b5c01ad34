package notification

import (
	"context"
	"log/slog"

	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// NoopNotifier logs notifications instead of sending them.
// Used when Slack is not configured.
type NoopNotifier struct {
	logger *slog.Logger
}

var _ outbound.Notifier = (*NoopNotifier)(nil)

// NewNoopNotifier creates a new NoopNotifier.
func NewNoopNotifier(logger *slog.Logger) *NoopNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopNotifier{logger: logger}
}

func (n *NoopNotifier) NotifyPartialExecutor(_ context.Context, notification outbound.PartialExecutorNotification) error {
	n.logger.Warn("noop: partial executor",
		"executorID", notification.ExecutorID,
		"namespace", notification.Namespace,
		"name", notification.Name,
		"error", notification.Error,
	)
	return nil
}

func (n *NoopNotifier) SendMessage(_ context.Context, message string, level outbound.NotificationLevel) error {
	n.logger.Info("noop: message",
		"message", message,
		"level", level,
	)
	return nil
}
