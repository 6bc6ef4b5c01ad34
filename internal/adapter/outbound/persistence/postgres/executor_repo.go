package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// ExecutorRepo implements outbound.ExecutorRepository on PostgreSQL.
type ExecutorRepo struct {
	pool *pgxpool.Pool
}

// NewExecutorRepo constructs an ExecutorRepo.
func NewExecutorRepo(store *Store) *ExecutorRepo {
	return &ExecutorRepo{pool: store.Pool}
}

var _ outbound.ExecutorRepository = (*ExecutorRepo)(nil)

const executorColumns = `id, namespace, name, image, phase, last_error, created_at, updated_at`

// Create inserts an executor record.
func (r *ExecutorRepo) Create(ctx context.Context, rec model.ExecutorRecord) (model.ExecutorRecord, error) {
	const query = `INSERT INTO executors (` + executorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Namespace, rec.Name, rec.Image,
		string(rec.Phase), rec.LastError, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("inserting executor: %w", err)
	}
	return rec, nil
}

// GetByID fetches an executor by identifier.
func (r *ExecutorRepo) GetByID(ctx context.Context, id string) (model.ExecutorRecord, error) {
	const query = `SELECT ` + executorColumns + ` FROM executors WHERE id = $1`
	rec, err := scanExecutor(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ExecutorRecord{}, fmt.Errorf("executor %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("fetching executor: %w", err)
	}
	return rec, nil
}

// GetLatest returns the most recently created record for namespace/name.
func (r *ExecutorRepo) GetLatest(ctx context.Context, namespace, name string) (model.ExecutorRecord, error) {
	const query = `SELECT ` + executorColumns + ` FROM executors
		WHERE namespace = $1 AND name = $2 ORDER BY created_at DESC, id DESC LIMIT 1`
	rec, err := scanExecutor(r.pool.QueryRow(ctx, query, namespace, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ExecutorRecord{}, fmt.Errorf("executor %s/%s: %w", namespace, name, model.ErrNotFound)
	}
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("fetching executor: %w", err)
	}
	return rec, nil
}

// Update stores the phase, last error and update time of the record.
func (r *ExecutorRepo) Update(ctx context.Context, rec model.ExecutorRecord) (model.ExecutorRecord, error) {
	const query = `UPDATE executors SET phase = $1, last_error = $2, updated_at = $3 WHERE id = $4`
	tag, err := r.pool.Exec(ctx, query, string(rec.Phase), rec.LastError, rec.UpdatedAt, rec.ID)
	if err != nil {
		return model.ExecutorRecord{}, fmt.Errorf("updating executor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ExecutorRecord{}, fmt.Errorf("executor %s: %w", rec.ID, model.ErrNotFound)
	}
	return rec, nil
}

var allowedExecutorOrderColumns = map[string]bool{
	"created_at": true, "updated_at": true, "namespace": true, "name": true, "phase": true,
}

// List returns a paginated, filtered list of executors.
func (r *ExecutorRepo) List(ctx context.Context, filter outbound.ExecutorFilter, page outbound.PageRequest) (outbound.PageResult[model.ExecutorRecord], error) {
	where, args := buildExecutorWhere(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(1) FROM executors"+where, args...).Scan(&total); err != nil {
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

	query := fmt.Sprintf(`SELECT %s FROM executors%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		executorColumns, where, orderCol, dir, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, size, offset)...)
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

func scanExecutor(row pgx.Row) (model.ExecutorRecord, error) {
	var rec model.ExecutorRecord
	var phase string
	if err := row.Scan(&rec.ID, &rec.Namespace, &rec.Name, &rec.Image, &phase, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return model.ExecutorRecord{}, err
	}
	rec.Phase = model.ExecutorPhase(phase)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func buildExecutorWhere(f outbound.ExecutorFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Namespace != "" {
		args = append(args, f.Namespace)
		clauses = append(clauses, fmt.Sprintf("namespace = $%d", len(args)))
	}
	if f.Phase != "" {
		args = append(args, string(f.Phase))
		clauses = append(clauses, fmt.Sprintf("phase = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
