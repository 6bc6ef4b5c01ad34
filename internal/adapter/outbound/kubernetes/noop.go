package kubernetes

import (
	"context"
	"log/slog"

	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// NoopControlPlane is used in dry-run mode and for local development without a cluster.
// Every call succeeds after logging what would have been sent; ListWorkloads returns nothing.
type NoopControlPlane struct {
	logger *slog.Logger
}

var _ outbound.ControlPlane = (*NoopControlPlane)(nil)

func NewNoopControlPlane(logger *slog.Logger) *NoopControlPlane {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopControlPlane{logger: logger}
}

func (n *NoopControlPlane) CreateWorkload(_ context.Context, namespace, name, image string) error {
	n.logger.Info("dry run: create workload", "namespace", namespace, "name", name, "image", image)
	return nil
}

func (n *NoopControlPlane) CreateService(_ context.Context, namespace, name string) error {
	n.logger.Info("dry run: create service", "namespace", namespace, "name", name)
	return nil
}

func (n *NoopControlPlane) DeleteWorkload(_ context.Context, namespace, name string) error {
	n.logger.Info("dry run: delete workload", "namespace", namespace, "name", name)
	return nil
}

func (n *NoopControlPlane) ListWorkloads(_ context.Context, namespace string) ([]string, error) {
	n.logger.Info("dry run: list workloads", "namespace", namespace)
	return []string{}, nil
}

func (n *NoopControlPlane) HealthCheck(_ context.Context) error {
	return nil
}
