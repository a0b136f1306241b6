package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx, so entries can be written
// inside the transaction of the mutation they describe.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repo struct{ DB *pgxpool.Pool }

func Append(ctx context.Context, db Execer, e Entry) error {
	_, err := db.Exec(ctx, `
		INSERT INTO admin_audit_logs(user_id, action, model_name, object_id, before_data, after_data)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.UserID, string(e.Action), e.ModelName, e.ObjectID, nullJSON(e.Before), nullJSON(e.After))
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// Record builds and appends an entry in one call.
func Record(ctx context.Context, db Execer, actor *int64, action Action, before, after Snapshot) error {
	e, err := NewEntry(actor, action, before, after)
	if err != nil {
		return err
	}
	return Append(ctx, db, e)
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.ModelName != "" {
		add("model_name = $%d", f.ModelName)
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	q := `SELECT id, user_id, action, model_name, object_id, before_data, after_data, created_at FROM admin_audit_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e      Entry
			action string
		)
		err := row.Scan(&e.ID, &e.UserID, &action, &e.ModelName, &e.ObjectID, &e.Before, &e.After, &e.CreatedAt)
		e.Action = Action(action)
		return e, err
	})
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
