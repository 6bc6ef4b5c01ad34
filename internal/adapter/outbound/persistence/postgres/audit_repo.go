package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonny/executor-provisioner/internal/domain/model"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// AuditRepo implements outbound.AuditRepository on PostgreSQL.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo constructs an AuditRepo.
func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{pool: store.Pool}
}

var _ outbound.AuditRepository = (*AuditRepo)(nil)

// Create inserts an audit log row. Metadata is stored as JSONB.
func (r *AuditRepo) Create(ctx context.Context, log model.AuditLog) error {
	meta := log.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	const query = `INSERT INTO audit_logs (id, event_type, namespace, name, outcome, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		log.ID, string(log.EventType), log.Namespace, log.Name,
		string(log.Outcome), log.Description, meta, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

var allowedAuditOrderColumns = map[string]bool{
	"created_at": true, "event_type": true, "namespace": true,
	"name": true, "outcome": true,
}

// List returns a paginated, filtered list of audit logs.
func (r *AuditRepo) List(ctx context.Context, filter outbound.AuditFilter, page outbound.PageRequest) (outbound.PageResult[model.AuditLog], error) {
	where, args := buildAuditWhere(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(1) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("counting audit logs: %w", err)
	}

	orderCol := "created_at"
	if page.OrderBy != "" {
		if !allowedAuditOrderColumns[page.OrderBy] {
			return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("invalid order column: %q", page.OrderBy)
		}
		orderCol = page.OrderBy
	}
	dir := "ASC"
	if page.Desc {
		dir = "DESC"
	}
	size, offset := pageBounds(page.Page, page.Size)

	query := fmt.Sprintf(`SELECT id, event_type, namespace, name, outcome, description, metadata, created_at
		FROM audit_logs%s ORDER BY %s %s LIMIT $%d OFFSET $%d`, where, orderCol, dir, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, size, offset)...)
	if err != nil {
		return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("listing audit logs: %w", err)
	}
	defer rows.Close()

	var items []model.AuditLog
	for rows.Next() {
		l, err := scanAuditLog(rows)
		if err != nil {
			return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("scanning audit log: %w", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("iterating audit logs: %w", err)
	}

	return outbound.PageResult[model.AuditLog]{
		Items:      items,
		TotalCount: total,
		Page:       page.Page,
		Size:       size,
	}, nil
}

func scanAuditLog(row pgx.Row) (model.AuditLog, error) {
	var l model.AuditLog
	var eventType, outcome string
	if err := row.Scan(&l.ID, &eventType, &l.Namespace, &l.Name, &outcome, &l.Description, &l.Metadata, &l.CreatedAt); err != nil {
		return model.AuditLog{}, err
	}
	l.EventType = model.AuditEventType(eventType)
	l.Outcome = model.AuditOutcome(outcome)
	l.CreatedAt = l.CreatedAt.UTC()
	if l.Metadata == nil {
		l.Metadata = make(map[string]string)
	}
	return l, nil
}

func buildAuditWhere(f outbound.AuditFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(column string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s $%d", column, len(args)))
	}
	if f.EventType != "" {
		add("event_type =", f.EventType)
	}
	if f.Namespace != "" {
		add("namespace =", f.Namespace)
	}
	if f.Name != "" {
		add("name =", f.Name)
	}
	if f.Outcome != "" {
		add("outcome =", f.Outcome)
	}
	if f.Since != nil {
		add("created_at >=", f.Since.UTC())
	}
	if f.Until != nil {
		add("created_at <=", f.Until.UTC())
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
