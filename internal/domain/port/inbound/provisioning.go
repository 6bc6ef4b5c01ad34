package inbound

import (
	"context"

	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// ProvisioningPort is the public executor lifecycle surface.
type ProvisioningPort interface {
	// CreateExecutor creates the workload and then, only if that succeeded, the service.
	// A failure in the second step leaves the workload live; the returned result says which
	// steps completed.
	CreateExecutor(ctx context.Context, req model.ExecutorRequest) (model.ExecutorResult, error)
	CreateWorkload(ctx context.Context, namespace, name, image string) error
	CreateService(ctx context.Context, namespace, name string) error
	DeleteWorkload(ctx context.Context, namespace, name string) error
	ListWorkloads(ctx context.Context, namespace string) ([]string, error)

	GetExecutor(ctx context.Context, namespace, name string) (model.ExecutorRecord, error)
	ListExecutors(ctx context.Context, filter outbound.ExecutorFilter, page outbound.PageRequest) (outbound.PageResult[model.ExecutorRecord], error)
}
