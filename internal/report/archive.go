package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/percystore/smartsales/internal/apperr"
)

type Kind string

const (
	KindSales Kind = "sales"
	KindAudit Kind = "audit"
)

// Record is a generated report file. Rows are insert-only; the reports
// table rejects updates and deletes.
type Record struct {
	ID          int64           `json:"id"`
	Kind        Kind            `json:"kind"`
	CreatedBy   *int64          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Filters     json.RawMessage `json:"filters"`
	Format      Format          `json:"format"`
	FileName    string          `json:"file_name"`
	ContentType string          `json:"content_type"`
	Content     []byte          `json:"-"`
}

type Archive interface {
	Save(ctx context.Context, r *Record) error
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Save(ctx context.Context, rec *Record) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO reports(kind, created_by, filters, format, file_name, content)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		string(rec.Kind), rec.CreatedBy, string(rec.Filters), string(rec.Format), rec.FileName, rec.Content,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// List returns records of a kind, newest first, without their content.
func (r *Repo) List(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, kind, created_by, created_at, filters, format, file_name
		FROM reports WHERE kind = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, string(kind), limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.Kind, &rec.CreatedBy, &rec.CreatedAt, &rec.Filters, &rec.Format, &rec.FileName)
		rec.ContentType = contentType(rec.Format)
		return rec, err
	})
}

func (r *Repo) Get(ctx context.Context, kind Kind, id int64) (Record, error) {
	var rec Record
	err := r.DB.QueryRow(ctx, `
		SELECT id, kind, created_by, created_at, filters, format, file_name, content
		FROM reports WHERE id = $1 AND kind = $2`, id, string(kind),
	).Scan(&rec.ID, &rec.Kind, &rec.CreatedBy, &rec.CreatedAt, &rec.Filters, &rec.Format, &rec.FileName, &rec.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, apperr.NotFound("report %d not found", id)
	}
	if err != nil {
		return rec, err
	}
	rec.ContentType = contentType(rec.Format)
	return rec, nil
}

func contentType(f Format) string {
	if r, ok := Renderers()[f]; ok {
		return r.ContentType()
	}
	return "application/octet-stream"
}
