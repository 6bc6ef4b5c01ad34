package outbound

import (
	"context"
	"time"

	"github.com/jonny/executor-provisioner/internal/domain/model"
)

type PageRequest struct {
	Page    int
	Size    int
	OrderBy string
	Desc    bool
}

type PageResult[T any] struct {
	Items      []T
	TotalCount int64
	Page       int
	Size       int
}

type ExecutorFilter struct {
	Namespace string
	Phase     model.ExecutorPhase
}

type AuditFilter struct {
	EventType string
	Namespace string
	Name      string
	Outcome   string
	Since     *time.Time
	Until     *time.Time
}

type ExecutorRepository interface {
	Create(ctx context.Context, record model.ExecutorRecord) (model.ExecutorRecord, error)
	GetByID(ctx context.Context, id string) (model.ExecutorRecord, error)
	// GetLatest returns the most recently created record for namespace/name.
	GetLatest(ctx context.Context, namespace, name string) (model.ExecutorRecord, error)
	Update(ctx context.Context, record model.ExecutorRecord) (model.ExecutorRecord, error)
	List(ctx context.Context, filter ExecutorFilter, page PageRequest) (PageResult[model.ExecutorRecord], error)
}

type AuditRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	List(ctx context.Context, filter AuditFilter, page PageRequest) (PageResult[model.AuditLog], error)
}
