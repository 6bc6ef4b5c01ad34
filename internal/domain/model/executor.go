package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// ExecutorPhase tracks how far the two-step executor creation got.
type ExecutorPhase string

const (
	ExecutorPhasePending         ExecutorPhase = "pending"
	ExecutorPhaseWorkloadCreated ExecutorPhase = "workload_created"
	ExecutorPhaseReady           ExecutorPhase = "ready"
	// ExecutorPhasePartial means the workload is live but the service endpoint was not created.
	// Nothing rolls the workload back; the caller decides how to compensate.
	ExecutorPhasePartial ExecutorPhase = "partial"
	ExecutorPhaseFailed  ExecutorPhase = "failed"
	ExecutorPhaseDeleted ExecutorPhase = "deleted"
)

// IsValid reports whether p is a known phase.
func (p ExecutorPhase) IsValid() bool {
	switch p {
	case ExecutorPhasePending, ExecutorPhaseWorkloadCreated, ExecutorPhaseReady,
		ExecutorPhasePartial, ExecutorPhaseFailed, ExecutorPhaseDeleted:
		return true
	}
	return false
}

// ExecutorRequest is what a caller supplies to stand up one executor.
type ExecutorRequest struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Image     string `json:"image"`
}

// ExecutorRecord is the persisted state of one executor.
type ExecutorRecord struct {
	ID        string        `json:"id"`
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
	Image     string        `json:"image"`
	Phase     ExecutorPhase `json:"phase"`
	LastError string        `json:"last_error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func NewExecutorRecord(req ExecutorRequest) ExecutorRecord {
	now := time.Now().UTC()
	return ExecutorRecord{
		ID:        generateID(),
		Namespace: req.Namespace,
		Name:      req.Name,
		Image:     req.Image,
		Phase:     ExecutorPhasePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithPhase returns a copy moved to phase. A nil cause clears LastError.
func (r ExecutorRecord) WithPhase(phase ExecutorPhase, cause error) ExecutorRecord {
	r.Phase = phase
	r.LastError = ""
	if cause != nil {
		r.LastError = cause.Error()
	}
	r.UpdatedAt = time.Now().UTC()
	return r
}

// Key is the namespace/name pair that identifies the executor on the cluster.
func (r ExecutorRecord) Key() string {
	return r.Namespace + "/" + r.Name
}

// ExecutorResult reports which phases of CreateExecutor completed.
type ExecutorResult struct {
	Record          ExecutorRecord `json:"record"`
	WorkloadCreated bool           `json:"workload_created"`
	ServiceCreated  bool           `json:"service_created"`
}

// PartialExecutorError is returned when the workload was created but the service was not.
// The workload is left running.
type PartialExecutorError struct {
	Namespace string
	Name      string
	Err       error
}

func (e *PartialExecutorError) Error() string {
	return fmt.Sprintf("executor %s/%s partially created: workload is live, service failed: %v", e.Namespace, e.Name, e.Err)
}

func (e *PartialExecutorError) Unwrap() error { return e.Err }
