package outbound

import "context"

type NotificationLevel string

const (
	NotificationInfo     NotificationLevel = "info"
	NotificationWarning  NotificationLevel = "warning"
	NotificationCritical NotificationLevel = "critical"
)

// PartialExecutorNotification describes an executor whose workload is live without a service.
type PartialExecutorNotification struct {
	ExecutorID string
	Namespace  string
	Name       string
	Image      string
	Error      string
}

// Notifier tells operators about executors that need manual attention.
type Notifier interface {
	NotifyPartialExecutor(ctx context.Context, notification PartialExecutorNotification) error
	SendMessage(ctx context.Context, message string, level NotificationLevel) error
}
