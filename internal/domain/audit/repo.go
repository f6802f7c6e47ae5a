package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trialportal/portal/internal/platform/db"
	"github.com/trialportal/portal/pkg/pagination"
)

// Repository stores audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	// Search returns one page of matches, newest first, and the total match count.
	Search(ctx context.Context, f Filter, page pagination.Params) ([]*Entry, int, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, participant_id, user_id, user_name, activity, details, ip_address, created_at`

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_logs (`+entryCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ParticipantID, e.UserID, e.UserName, e.Activity, e.Details, e.IPAddress, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// whereClause renders f as a WHERE clause with positional args.
func whereClause(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ParticipantID != nil {
		add("participant_id = $%d", *f.ParticipantID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Activity != "" {
		add("activity = $%d", f.Activity)
	}
	if f.Since != nil {
		add("created_at >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("created_at < $%d", *f.Until)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) Search(ctx context.Context, f Filter, page pagination.Params) ([]*Entry, int, error) {
	where, args := whereClause(f)
	conn := r.conn(ctx)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		entryCols, where, n+1, n+2)
	rows, err := conn.Query(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search audit entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ParticipantID, &e.UserID, &e.UserName, &e.Activity,
			&e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
