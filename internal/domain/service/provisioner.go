package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/inbound"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
	"github.com/jonny/executor-provisioner/pkg/apierror"
)

// Repositories groups the persistence dependencies of the provisioner.
type Repositories struct {
	Executors outbound.ExecutorRepository
	Audits    outbound.AuditRepository
}

// Provisioner stands up executors on the control plane and keeps a record of how far each
// one got. It implements inbound.ProvisioningPort.
type Provisioner struct {
	controlPlane outbound.ControlPlane
	repos        Repositories
	notifier     outbound.Notifier
	logger       *slog.Logger
}

var _ inbound.ProvisioningPort = (*Provisioner)(nil)

// NewProvisioner creates a Provisioner with all required dependencies.
func NewProvisioner(
	controlPlane outbound.ControlPlane,
	repos Repositories,
	notifier outbound.Notifier,
	logger *slog.Logger,
) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		controlPlane: controlPlane,
		repos:        repos,
		notifier:     notifier,
		logger:       logger,
	}
}

// CreateExecutor runs the two creation phases in order. The service is only attempted once
// the workload exists. When the service fails the workload is left running, the record is
// marked partial and a *model.PartialExecutorError is returned alongside a result that says
// which phases completed.
func (p *Provisioner) CreateExecutor(ctx context.Context, req model.ExecutorRequest) (model.ExecutorResult, error) {
	record := model.NewExecutorRecord(req)
	record = p.saveNew(ctx, record)
	result := model.ExecutorResult{Record: record}

	// 1. Workload.
	if err := p.controlPlane.CreateWorkload(ctx, req.Namespace, req.Name, req.Image); err != nil {
		result.Record = p.moveTo(ctx, record, model.ExecutorPhaseFailed, err)
		p.audit(ctx, model.NewAuditLog(model.AuditExecutorCreate, req.Namespace, req.Name,
			model.AuditOutcomeFailure, "workload creation failed").
			WithMetadata("image", req.Image).
			WithMetadata("error", err.Error()))
		return result, fmt.Errorf("create executor %s/%s: %w", req.Namespace, req.Name, err)
	}
	result.WorkloadCreated = true
	record = p.moveTo(ctx, record, model.ExecutorPhaseWorkloadCreated, nil)
	result.Record = record

	// 2. Service.
	if err := p.controlPlane.CreateService(ctx, req.Namespace, req.Name); err != nil {
		partial := &model.PartialExecutorError{Namespace: req.Namespace, Name: req.Name, Err: err}
		result.Record = p.moveTo(ctx, record, model.ExecutorPhasePartial, err)
		p.audit(ctx, model.NewAuditLog(model.AuditExecutorCreate, req.Namespace, req.Name,
			model.AuditOutcomePartial, "workload is live but service creation failed").
			WithMetadata("image", req.Image).
			WithMetadata("error", err.Error()))

		p.logger.Warn("executor partially created",
			"namespace", req.Namespace,
			"name", req.Name,
			"executor_id", record.ID,
			"error", err,
		)
		if nerr := p.notifier.NotifyPartialExecutor(ctx, outbound.PartialExecutorNotification{
			ExecutorID: record.ID,
			Namespace:  req.Namespace,
			Name:       req.Name,
			Image:      req.Image,
			Error:      err.Error(),
		}); nerr != nil {
			p.logger.Error("notify partial executor", "executor_id", record.ID, "error", nerr)
		}
		return result, partial
	}
	result.ServiceCreated = true
	result.Record = p.moveTo(ctx, record, model.ExecutorPhaseReady, nil)

	p.audit(ctx, model.NewAuditLog(model.AuditExecutorCreate, req.Namespace, req.Name,
		model.AuditOutcomeSuccess, "executor created").
		WithMetadata("image", req.Image))
	p.logger.Info("executor created", "namespace", req.Namespace, "name", req.Name, "executor_id", record.ID)

	return result, nil
}

// CreateWorkload creates only the executor pod.
func (p *Provisioner) CreateWorkload(ctx context.Context, namespace, name, image string) error {
	err := p.controlPlane.CreateWorkload(ctx, namespace, name, image)
	p.audit(ctx, outcomeLog(model.AuditWorkloadCreate, namespace, name, "create workload", err).
		WithMetadata("image", image))
	return err
}

// CreateService creates only the executor service.
func (p *Provisioner) CreateService(ctx context.Context, namespace, name string) error {
	err := p.controlPlane.CreateService(ctx, namespace, name)
	p.audit(ctx, outcomeLog(model.AuditServiceCreate, namespace, name, "create service", err))
	return err
}

// DeleteWorkload deletes the executor pod and marks the latest matching record deleted.
func (p *Provisioner) DeleteWorkload(ctx context.Context, namespace, name string) error {
	err := p.controlPlane.DeleteWorkload(ctx, namespace, name)
	p.audit(ctx, outcomeLog(model.AuditWorkloadDelete, namespace, name, "delete workload", err))
	if err != nil {
		return err
	}

	record, lookupErr := p.repos.Executors.GetLatest(ctx, namespace, name)
	switch {
	case errors.Is(lookupErr, model.ErrNotFound):
	case lookupErr != nil:
		p.logger.Error("look up executor record", "namespace", namespace, "name", name, "error", lookupErr)
	default:
		p.moveTo(ctx, record, model.ExecutorPhaseDeleted, nil)
	}
	return nil
}

// ListWorkloads returns the workload names in the namespace in platform order.
func (p *Provisioner) ListWorkloads(ctx context.Context, namespace string) ([]string, error) {
	names, err := p.controlPlane.ListWorkloads(ctx, namespace)
	entry := outcomeLog(model.AuditWorkloadList, namespace, "", "list workloads", err)
	if err == nil {
		entry = entry.WithMetadata("count", strconv.Itoa(len(names)))
	}
	p.audit(ctx, entry)
	return names, err
}

// GetExecutor returns the latest record for namespace/name.
func (p *Provisioner) GetExecutor(ctx context.Context, namespace, name string) (model.ExecutorRecord, error) {
	record, err := p.repos.Executors.GetLatest(ctx, namespace, name)
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("get executor %s/%s: %w", namespace, name, err)
	}
	return record, nil
}

// ListExecutors returns executor records matching filter.
func (p *Provisioner) ListExecutors(ctx context.Context, filter outbound.ExecutorFilter, page outbound.PageRequest) (outbound.PageResult[model.ExecutorRecord], error) {
	if filter.Phase != "" && !filter.Phase.IsValid() {
		return outbound.PageResult[model.ExecutorRecord]{}, apierror.NewCallerInput("phase", fmt.Sprintf("unknown executor phase %q", filter.Phase))
	}
	result, err := p.repos.Executors.List(ctx, filter, page)
	if err != nil {
		return outbound.PageResult[model.ExecutorRecord]{}, fmt.Errorf("list executors: %w", err)
	}
	return result, nil
}

// saveNew persists a fresh record. Persistence failures are logged; provisioning continues.
func (p *Provisioner) saveNew(ctx context.Context, record model.ExecutorRecord) model.ExecutorRecord {
	saved, err := p.repos.Executors.Create(ctx, record)
	if err != nil {
		p.logger.Error("save executor record", "executor_id", record.ID, "error", err)
		return record
	}
	return saved
}

func (p *Provisioner) moveTo(ctx context.Context, record model.ExecutorRecord, phase model.ExecutorPhase, cause error) model.ExecutorRecord {
	next := record.WithPhase(phase, cause)
	saved, err := p.repos.Executors.Update(ctx, next)
	if err != nil {
		p.logger.Error("update executor record",
			"executor_id", record.ID,
			"phase", string(phase),
			"error", err,
		)
		return next
	}
	return saved
}

func (p *Provisioner) audit(ctx context.Context, entry model.AuditLog) {
	if err := p.repos.Audits.Create(ctx, entry); err != nil {
		p.logger.Error("write audit log", "event_type", string(entry.EventType), "error", err)
	}
}

func outcomeLog(eventType model.AuditEventType, namespace, name, action string, err error) model.AuditLog {
	if err != nil {
		return model.NewAuditLog(eventType, namespace, name, model.AuditOutcomeFailure, action+" failed").
			WithMetadata("error", err.Error())
	}
	return model.NewAuditLog(eventType, namespace, name, model.AuditOutcomeSuccess, action)
}
