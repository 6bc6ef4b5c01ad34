package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jonny/executor-provisioner/internal/adapter/outbound/persistence/postgres"
	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// newTestStore connects to the database named by PROVISIONER_TEST_POSTGRES_DSN and skips
// the test when it is unset.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("PROVISIONER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PROVISIONER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := postgres.NewStore(ctx, postgres.Config{DSN: dsn, MaxConns: 2}, nil)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	if _, err := store.Pool.Exec(ctx, "TRUNCATE executors, audit_logs"); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore_EmptyDSN(t *testing.T) {
	if _, err := postgres.NewStore(context.Background(), postgres.Config{}, nil); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestExecutorRepo_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	repo := postgres.NewExecutorRepo(store)
	ctx := context.Background()

	rec := model.NewExecutorRecord(model.ExecutorRequest{Namespace: "default", Name: "exec-1", Image: "ballista:latest"})
	if _, err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	partial := rec.WithPhase(model.ExecutorPhasePartial, errors.New("service quota exceeded"))
	if _, err := repo.Update(ctx, partial); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.GetLatest(ctx, "default", "exec-1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got.ID != rec.ID || got.Phase != model.ExecutorPhasePartial {
		t.Errorf("unexpected record %+v", got)
	}

	res, err := repo.List(ctx, outbound.ExecutorFilter{Phase: model.ExecutorPhasePartial}, outbound.PageRequest{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.TotalCount != 1 {
		t.Errorf("expected 1 partial executor, got %d", res.TotalCount)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditRepo_CreateAndList(t *testing.T) {
	store := newTestStore(t)
	repo := postgres.NewAuditRepo(store)
	ctx := context.Background()

	l := model.NewAuditLog(model.AuditWorkloadDelete, "default", "exec-1", model.AuditOutcomeFailure, "delete workload failed").
		WithMetadata("error", "404")
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := repo.List(ctx, outbound.AuditFilter{Namespace: "default", Outcome: string(model.AuditOutcomeFailure)}, outbound.PageRequest{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Metadata["error"] != "404" {
		t.Errorf("unexpected audit logs %+v", res.Items)
	}
}
