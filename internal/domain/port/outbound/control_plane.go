package outbound

import "context"

// ControlPlane is the narrow create/delete/list surface of the orchestration platform
// needed to stand up one executor. Every call is one request and one response.
type ControlPlane interface {
	CreateWorkload(ctx context.Context, namespace, name, image string) error
	CreateService(ctx context.Context, namespace, name string) error
	DeleteWorkload(ctx context.Context, namespace, name string) error
	// ListWorkloads returns workload names in the order the platform returned them.
	ListWorkloads(ctx context.Context, namespace string) ([]string, error)
	HealthCheck(ctx context.Context) error
}
