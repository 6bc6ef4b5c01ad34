package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// ExecutorRepo implements outbound.ExecutorRepository using SQLite.
type ExecutorRepo struct {
	db *sql.DB
}

// NewExecutorRepo creates a new ExecutorRepo backed by the given store.
func NewExecutorRepo(store *Store) *ExecutorRepo {
	return &ExecutorRepo{db: store.DB}
}

var _ outbound.ExecutorRepository = (*ExecutorRepo)(nil)

const executorColumns = `id, namespace, name, image, phase, last_error, created_at, updated_at`

// Create inserts a new executor row and returns the stored record.
func (r *ExecutorRepo) Create(ctx context.Context, rec model.ExecutorRecord) (model.ExecutorRecord, error) {
	const q = `INSERT INTO executors (` + executorColumns + `) VALUES (?,?,?,?,?,?,?,?)`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.Namespace, rec.Name, rec.Image,
		string(rec.Phase), rec.LastError,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("inserting executor: %w", err)
	}
	return rec, nil
}

// GetByID fetches a single executor by primary key.
func (r *ExecutorRepo) GetByID(ctx context.Context, id string) (model.ExecutorRecord, error) {
	const q = `SELECT ` + executorColumns + ` FROM executors WHERE id = ?`

	rec, err := scanExecutor(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExecutorRecord{}, fmt.Errorf("executor %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("fetching executor: %w", err)
	}
	return rec, nil
}

// GetLatest returns the most recently created record for namespace/name.
func (r *ExecutorRepo) GetLatest(ctx context.Context, namespace, name string) (model.ExecutorRecord, error) {
	const q = `SELECT ` + executorColumns + ` FROM executors
		WHERE namespace = ? AND name = ? ORDER BY created_at DESC, id DESC LIMIT 1`

	rec, err := scanExecutor(r.db.QueryRowContext(ctx, q, namespace, name))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExecutorRecord{}, fmt.Errorf("executor %s/%s: %w", namespace, name, model.ErrNotFound)
	}
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("fetching executor: %w", err)
	}
	return rec, nil
}

// Update stores the phase, last error and update time of the record.
func (r *ExecutorRepo) Update(ctx context.Context, rec model.ExecutorRecord) (model.ExecutorRecord, error) {
	const q = `UPDATE executors SET phase = ?, last_error = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, q, string(rec.Phase), rec.LastError, rec.UpdatedAt.UTC(), rec.ID)
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("updating executor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return model.ExecutorRecord{}, fmt.Errorf("executor %s: %w", rec.ID, model.ErrNotFound)
	}
	return rec, nil
}

// allowedExecutorOrderColumns defines valid columns for ORDER BY to prevent SQL injection.
var allowedExecutorOrderColumns = map[string]bool{
	"created_at": true, "updated_at": true, "namespace": true, "name": true, "phase": true,
}

// List returns a paginated, filtered list of executors.
func (r *ExecutorRepo) List(ctx context.Context, filter outbound.ExecutorFilter, page outbound.PageRequest) (outbound.PageResult[model.ExecutorRecord], error) {
	where, args := buildExecutorWhere(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executors"+where, args...).Scan(&total); err != nil {
		return outbound.PageResult[model.ExecutorRecord]{}, fmt.Errorf("counting executors: %w", err)
	}

	orderCol := "created_at"
	if page.OrderBy != "" {
		if !allowedExecutorOrderColumns[page.OrderBy] {
			return outbound.PageResult[model.ExecutorRecord]{}, fmt.Errorf("invalid order column: %q", page.OrderBy)
		}
		orderCol = page.OrderBy
	}
	dir := "ASC"
	if page.Desc {
		dir = "DESC"
	}
	size, offset := pageBounds(page.Page, page.Size)

	dataQ := fmt.Sprintf(`SELECT %s FROM executors%s ORDER BY %s %s LIMIT ? OFFSET ?`,
		executorColumns, where, orderCol, dir)

	rows, err := r.db.QueryContext(ctx, dataQ, append(args, size, offset)...)
	if err != nil {
		return outbound.PageResult[model.ExecutorRecord]{}, fmt.Errorf("listing executors: %w", err)
	}
	defer rows.Close()

	var items []model.ExecutorRecord
	for rows.Next() {
		rec, err := scanExecutor(rows)
		if err != nil {
			return outbound.PageResult[model.ExecutorRecord]{}, fmt.Errorf("scanning executor: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return outbound.PageResult[model.ExecutorRecord]{}, fmt.Errorf("iterating executors: %w", err)
	}

	return outbound.PageResult[model.ExecutorRecord]{
		Items:      items,
		TotalCount: total,
		Page:       page.Page,
		Size:       size,
	}, nil
}

// --- helpers ---

type executorScanner interface {
	Scan(dest ...any) error
}

func scanExecutor(s executorScanner) (model.ExecutorRecord, error) {
	var rec model.ExecutorRecord
	var phase string
	err := s.Scan(
		&rec.ID, &rec.Namespace, &rec.Name, &rec.Image,
		&phase, &rec.LastError,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return model.ExecutorRecord{}, err
	}
	rec.Phase = model.ExecutorPhase(phase)
	return rec, nil
}

func buildExecutorWhere(f outbound.ExecutorFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Namespace != "" {
		clauses = append(clauses, "namespace = ?")
		args = append(args, f.Namespace)
	}
	if f.Phase != "" {
		clauses = append(clauses, "phase = ?")
		args = append(args, string(f.Phase))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
