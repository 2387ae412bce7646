package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs written by shared.AuditLogger.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a postgres-backed audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func filterClause(filters Filters, args []any) (string, []any) {
	clauses := []string{"occurred_at >= $1", "occurred_at <= $2"}
	for _, f := range []struct {
		column string
		value  any
		skip   bool
	}{
		{"actor_id", filters.ActorID, filters.ActorID == 0},
		{"entity", filters.Entity, filters.Entity == ""},
		{"action", filters.Action, filters.Action == ""},
	} {
		if f.skip {
			continue
		}
		args = append(args, f.value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", f.column, len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// Timeline returns entries in the window, newest first.
func (r *PGRepository) Timeline(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	where, args := filterClause(filters, []any{filters.From, filters.To})
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
SELECT occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE %s
ORDER BY occurred_at DESC, id DESC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry Entry
			meta  []byte
		)
		if err := rows.Scan(&entry.At, &entry.ActorID, &entry.Action, &entry.Entity, &entry.EntityID, &meta); err != nil {
			return nil, fmt.Errorf("audit: scan timeline: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of entries matching the filters.
func (r *PGRepository) Count(ctx context.Context, filters Filters) (int, error) {
	where, args := filterClause(filters, []any{filters.From, filters.To})
	query := fmt.Sprintf(`SELECT COUNT(*) FROM audit_logs WHERE %s`, where)

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("audit: count timeline: %w", err)
	}
	return total, nil
}
