package service_test

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
	"github.com/jonny/executor-provisioner/internal/domain/service"
)

// --- mock repositories ---

type mockExecutorRepo struct {
	mu      sync.Mutex
	records map[string]model.ExecutorRecord
	order   []string
	err     error
}

func newMockExecutorRepo() *mockExecutorRepo {
	return &mockExecutorRepo{records: make(map[string]model.ExecutorRecord)}
}

func (r *mockExecutorRepo) Create(_ context.Context, rec model.ExecutorRecord) (model.ExecutorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return model.ExecutorRecord{}, r.err
	}
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return rec, nil
}

func (r *mockExecutorRepo) GetByID(_ context.Context, id string) (model.ExecutorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return model.ExecutorRecord{}, model.ErrNotFound
	}
	return rec, nil
}

func (r *mockExecutorRepo) GetLatest(_ context.Context, namespace, name string) (model.ExecutorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.records[r.order[i]]
		if rec.Namespace == namespace && rec.Name == name {
			return rec, nil
		}
	}
	return model.ExecutorRecord{}, model.ErrNotFound
}

func (r *mockExecutorRepo) Update(_ context.Context, rec model.ExecutorRecord) (model.ExecutorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return model.ExecutorRecord{}, r.err
	}
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *mockExecutorRepo) List(_ context.Context, filter outbound.ExecutorFilter, _ outbound.PageRequest) (outbound.PageResult[model.ExecutorRecord], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.ExecutorRecord
	for _, id := range r.order {
		rec := r.records[id]
		if filter.Phase != "" && rec.Phase != filter.Phase {
			continue
		}
		items = append(items, rec)
	}
	return outbound.PageResult[model.ExecutorRecord]{Items: items, TotalCount: int64(len(items))}, nil
}

var _ outbound.ExecutorRepository = (*mockExecutorRepo)(nil)

type mockAuditRepo struct {
	mu   sync.Mutex
	logs []model.AuditLog
	err  error
}

func (m *mockAuditRepo) Create(_ context.Context, l model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockAuditRepo) List(_ context.Context, _ outbound.AuditFilter, _ outbound.PageRequest) (outbound.PageResult[model.AuditLog], error) {
	return outbound.PageResult[model.AuditLog]{Items: m.logs}, nil
}

var _ outbound.AuditRepository = (*mockAuditRepo)(nil)

// --- mock control plane ---

type mockControlPlane struct {
	workloadErr error
	serviceErr  error
	deleteErr   error
	listErr     error
	names       []string
	calls       []string
}

func (m *mockControlPlane) CreateWorkload(_ context.Context, _, name, _ string) error {
	m.calls = append(m.calls, "workload:"+name)
	return m.workloadErr
}

func (m *mockControlPlane) CreateService(_ context.Context, _, name string) error {
	m.calls = append(m.calls, "service:"+name)
	return m.serviceErr
}

func (m *mockControlPlane) DeleteWorkload(_ context.Context, _, name string) error {
	m.calls = append(m.calls, "delete:"+name)
	return m.deleteErr
}

func (m *mockControlPlane) ListWorkloads(_ context.Context, _ string) ([]string, error) {
	m.calls = append(m.calls, "list")
	return m.names, m.listErr
}

func (m *mockControlPlane) HealthCheck(_ context.Context) error { return nil }

var _ outbound.ControlPlane = (*mockControlPlane)(nil)

// --- mock Notifier ---

type mockNotifier struct {
	partials []outbound.PartialExecutorNotification
	err      error
}

func (m *mockNotifier) NotifyPartialExecutor(_ context.Context, n outbound.PartialExecutorNotification) error {
	m.partials = append(m.partials, n)
	return m.err
}

func (m *mockNotifier) SendMessage(_ context.Context, _ string, _ outbound.NotificationLevel) error {
	return nil
}

var _ outbound.Notifier = (*mockNotifier)(nil)

// --- helpers ---

type fixture struct {
	cp        *mockControlPlane
	executors *mockExecutorRepo
	audits    *mockAuditRepo
	notifier  *mockNotifier
	svc       *service.Provisioner
}

func newFixture() *fixture {
	f := &fixture{
		cp:        &mockControlPlane{},
		executors: newMockExecutorRepo(),
		audits:    &mockAuditRepo{},
		notifier:  &mockNotifier{},
	}
	f.svc = service.NewProvisioner(f.cp, service.Repositories{
		Executors: f.executors,
		Audits:    f.audits,
	}, f.notifier, slog.Default())
	return f
}

func testRequest() model.ExecutorRequest {
	return model.ExecutorRequest{Namespace: "default", Name: "exec-1", Image: "ballista:latest"}
}

// --- CreateExecutor ---

func TestCreateExecutor_Success(t *testing.T) {
	f := newFixture()

	result, err := f.svc.CreateExecutor(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.WorkloadCreated || !result.ServiceCreated {
		t.Errorf("expected both phases completed, got %+v", result)
	}
	if result.Record.Phase != model.ExecutorPhaseReady {
		t.Errorf("expected phase ready, got %s", result.Record.Phase)
	}
	if want := []string{"workload:exec-1", "service:exec-1"}; !reflect.DeepEqual(f.cp.calls, want) {
		t.Errorf("expected calls %v, got %v", want, f.cp.calls)
	}

	stored, err := f.executors.GetByID(context.Background(), result.Record.ID)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if stored.Phase != model.ExecutorPhaseReady {
		t.Errorf("expected stored phase ready, got %s", stored.Phase)
	}
	if len(f.audits.logs) != 1 || f.audits.logs[0].Outcome != model.AuditOutcomeSuccess {
		t.Errorf("expected one success audit, got %+v", f.audits.logs)
	}
}

func TestCreateExecutor_WorkloadFailureSkipsService(t *testing.T) {
	f := newFixture()
	f.cp.workloadErr = errors.New("409 conflict")

	result, err := f.svc.CreateExecutor(context.Background(), testRequest())
	if !errors.Is(err, f.cp.workloadErr) {
		t.Fatalf("expected workload error, got %v", err)
	}
	var partial *model.PartialExecutorError
	if errors.As(err, &partial) {
		t.Error("workload failure must not be reported as partial")
	}
	if result.WorkloadCreated || result.ServiceCreated {
		t.Errorf("expected no phase completed, got %+v", result)
	}
	if result.Record.Phase != model.ExecutorPhaseFailed {
		t.Errorf("expected phase failed, got %s", result.Record.Phase)
	}
	if len(f.cp.calls) != 1 {
		t.Errorf("expected service not attempted, calls %v", f.cp.calls)
	}
	if len(f.notifier.partials) != 0 {
		t.Error("expected no partial notification")
	}
}

func TestCreateExecutor_ServiceFailureIsPartial(t *testing.T) {
	f := newFixture()
	cause := errors.New("service quota exceeded")
	f.cp.serviceErr = cause

	result, err := f.svc.CreateExecutor(context.Background(), testRequest())
	var partial *model.PartialExecutorError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialExecutorError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
	if !result.WorkloadCreated || result.ServiceCreated {
		t.Errorf("expected workload only, got %+v", result)
	}
	if result.Record.Phase != model.ExecutorPhasePartial {
		t.Errorf("expected phase partial, got %s", result.Record.Phase)
	}
	if result.Record.LastError != cause.Error() {
		t.Errorf("expected last error %q, got %q", cause.Error(), result.Record.LastError)
	}
	for _, c := range f.cp.calls {
		if c == "delete:exec-1" {
			t.Error("workload must not be rolled back")
		}
	}
	if len(f.notifier.partials) != 1 || f.notifier.partials[0].ExecutorID != result.Record.ID {
		t.Errorf("expected partial notification, got %+v", f.notifier.partials)
	}

	page, _ := f.svc.ListExecutors(context.Background(), outbound.ExecutorFilter{Phase: model.ExecutorPhasePartial}, outbound.PageRequest{})
	if len(page.Items) != 1 {
		t.Errorf("expected partial executor listed, got %d", len(page.Items))
	}
}

func TestCreateExecutor_PersistenceFailureDoesNotMaskResult(t *testing.T) {
	f := newFixture()
	f.executors.err = errors.New("disk full")
	f.audits.err = errors.New("disk full")

	result, err := f.svc.CreateExecutor(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ServiceCreated {
		t.Error("expected executor created despite persistence failures")
	}
}

func TestCreateExecutor_NotifierFailureKeepsPartialError(t *testing.T) {
	f := newFixture()
	f.cp.serviceErr = errors.New("boom")
	f.notifier.err = errors.New("slack down")

	_, err := f.svc.CreateExecutor(context.Background(), testRequest())
	var partial *model.PartialExecutorError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialExecutorError, got %v", err)
	}
}

// --- single operations ---

func TestCreateWorkload_Audited(t *testing.T) {
	f := newFixture()
	f.cp.workloadErr = errors.New("nope")

	err := f.svc.CreateWorkload(context.Background(), "default", "exec-1", "img")
	if !errors.Is(err, f.cp.workloadErr) {
		t.Fatalf("expected control plane error, got %v", err)
	}
	if len(f.audits.logs) != 1 {
		t.Fatalf("expected 1 audit log, got %d", len(f.audits.logs))
	}
	l := f.audits.logs[0]
	if l.EventType != model.AuditWorkloadCreate || l.Outcome != model.AuditOutcomeFailure {
		t.Errorf("unexpected audit %+v", l)
	}
	if l.Metadata["error"] != "nope" {
		t.Errorf("expected error in metadata, got %v", l.Metadata)
	}
}

func TestCreateService_PassesThrough(t *testing.T) {
	f := newFixture()
	if err := f.svc.CreateService(context.Background(), "default", "exec-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.cp.calls) != 1 || f.cp.calls[0] != "service:exec-1" {
		t.Errorf("unexpected calls %v", f.cp.calls)
	}
}

func TestDeleteWorkload_MarksRecordDeleted(t *testing.T) {
	f := newFixture()
	result, err := f.svc.CreateExecutor(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.DeleteWorkload(context.Background(), "default", "exec-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rec, _ := f.executors.GetByID(context.Background(), result.Record.ID)
	if rec.Phase != model.ExecutorPhaseDeleted {
		t.Errorf("expected phase deleted, got %s", rec.Phase)
	}
}

func TestDeleteWorkload_WithoutRecord(t *testing.T) {
	f := newFixture()
	if err := f.svc.DeleteWorkload(context.Background(), "default", "unknown"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteWorkload_FailureKeepsRecord(t *testing.T) {
	f := newFixture()
	result, _ := f.svc.CreateExecutor(context.Background(), testRequest())
	f.cp.deleteErr = errors.New("404")

	if err := f.svc.DeleteWorkload(context.Background(), "default", "exec-1"); err == nil {
		t.Fatal("expected error")
	}
	rec, _ := f.executors.GetByID(context.Background(), result.Record.ID)
	if rec.Phase != model.ExecutorPhaseReady {
		t.Errorf("expected phase unchanged, got %s", rec.Phase)
	}
}

func TestListWorkloads(t *testing.T) {
	f := newFixture()
	f.cp.names = []string{"c", "a", "b"}

	names, err := f.svc.ListWorkloads(context.Background(), "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"c", "a", "b"}) {
		t.Errorf("expected platform order, got %v", names)
	}
	if f.audits.logs[0].Metadata["count"] != "3" {
		t.Errorf("expected count in audit, got %v", f.audits.logs[0].Metadata)
	}
}

// --- queries ---

func TestGetExecutor(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CreateExecutor(context.Background(), testRequest()); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := f.svc.GetExecutor(context.Background(), "default", "exec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Image != "ballista:latest" {
		t.Errorf("unexpected record %+v", rec)
	}

	_, err = f.svc.GetExecutor(context.Background(), "default", "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListExecutors_InvalidPhase(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ListExecutors(context.Background(), outbound.ExecutorFilter{Phase: "bogus"}, outbound.PageRequest{})
	if err == nil {
		t.Error("expected error for unknown phase")
	}
}
