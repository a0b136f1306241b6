package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/audit"
	"github.com/percystore/smartsales/internal/postgres"
)

func errInvalid(msg string) error { return apperr.Validation("%s", msg) }

type Repo struct{ DB *pgxpool.Pool }

const productCols = `p.id, p.name, p.brand_id, p.category_id, COALESCE(b.name,''), COALESCE(c.name,''),
	p.description, p.color, p.size, p.price, p.sale_price, p.discount_percent, p.stock,
	p.image_url, p.warranty_months, p.is_active, p.is_featured, p.created_at, p.updated_at`

const productFrom = ` FROM products p
	LEFT JOIN brands b ON b.id = p.brand_id
	LEFT JOIN categories c ON c.id = p.category_id`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.BrandID, &p.CategoryID, &p.BrandName, &p.CategoryName,
		&p.Description, &p.Color, &p.Size, &p.Price, &p.SalePrice, &p.DiscountPercent, &p.Stock,
		&p.ImageURL, &p.WarrantyMonths, &p.IsActive, &p.IsFeatured, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

var sortClauses = map[string]string{
	"":       "p.name",
	"name":   "p.name",
	"price":  "COALESCE(p.sale_price, p.price) ASC, p.id",
	"-price": "COALESCE(p.sale_price, p.price) DESC, p.id",
	"newest": "p.created_at DESC, p.id DESC",
}

func (r *Repo) ListProducts(ctx context.Context, f ListFilter) ([]Product, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !f.IncludeInactive {
		where = append(where, "p.is_active")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("p.name ILIKE '%%' || $%d || '%%'", q)
	}
	if f.CategoryID != nil {
		add("p.category_id = $%d", *f.CategoryID)
	}
	if f.BrandID != nil {
		add("p.brand_id = $%d", *f.BrandID)
	}
	if f.MinPrice != nil {
		add("COALESCE(p.sale_price, p.price) >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("COALESCE(p.sale_price, p.price) <= $%d", *f.MaxPrice)
	}
	if f.Featured {
		where = append(where, "p.is_featured")
	}
	order, ok := sortClauses[f.Sort]
	if !ok {
		return nil, apperr.Validation("unknown sort %q", f.Sort)
	}

	q := "SELECT " + productCols + productFrom
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + order
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) { return scanProduct(row) })
}

// GetProduct returns a product; inactive products are NotFound unless includeInactive.
func (r *Repo) GetProduct(ctx context.Context, id int64, includeInactive bool) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, "SELECT "+productCols+productFrom+" WHERE p.id=$1", id))
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !p.IsActive && !includeInactive) {
		return Product{}, apperr.NotFound("product %d not found", id)
	}
	return p, err
}

func (r *Repo) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name FROM brands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Brand])
}

func (r *Repo) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Category])
}

// CreateProduct inserts the product and its CREATE audit entry in one transaction.
func (r *Repo) CreateProduct(ctx context.Context, actor int64, in ProductInput) (Product, error) {
	p := Product{IsActive: true}
	in.Apply(&p)
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO products(name, brand_id, category_id, description, color, size, price, sale_price,
			                     discount_percent, stock, image_url, warranty_months, is_active, is_featured, created_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			RETURNING id, created_at, updated_at`,
			p.Name, p.BrandID, p.CategoryID, p.Description, p.Color, p.Size, p.Price, p.SalePrice,
			p.DiscountPercent, p.Stock, p.ImageURL, p.WarrantyMonths, p.IsActive, p.IsFeatured, actor,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return audit.Record(ctx, tx, &actor, audit.ActionCreate, nil, p.Snapshot())
	})
	return p, err
}

func lockProduct(ctx context.Context, tx pgx.Tx, id int64) (Product, error) {
	p, err := scanProduct(tx.QueryRow(ctx, "SELECT "+productCols+productFrom+" WHERE p.id=$1 FOR UPDATE OF p", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.NotFound("product %d not found", id)
	}
	return p, err
}

func (r *Repo) UpdateProduct(ctx context.Context, actor, id int64, in ProductInput) (Product, error) {
	var after Product
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		before, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		after = before
		in.Apply(&after)
		if err := after.Validate(); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			UPDATE products SET name=$2, brand_id=$3, category_id=$4, description=$5, color=$6, size=$7,
			       price=$8, sale_price=$9, discount_percent=$10, stock=$11, image_url=$12,
			       warranty_months=$13, is_active=$14, is_featured=$15, updated_at=now()
			WHERE id=$1 RETURNING updated_at`,
			id, after.Name, after.BrandID, after.CategoryID, after.Description, after.Color, after.Size,
			after.Price, after.SalePrice, after.DiscountPercent, after.Stock, after.ImageURL,
			after.WarrantyMonths, after.IsActive, after.IsFeatured,
		).Scan(&after.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		return audit.Record(ctx, tx, &actor, audit.ActionUpdate, before.Snapshot(), after.Snapshot())
	})
	return after, err
}

// DeleteProduct deactivates the product; order and cart lines keep referencing it.
func (r *Repo) DeleteProduct(ctx context.Context, actor, id int64) error {
	return postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		before, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET is_active=false, updated_at=now() WHERE id=$1`, id); err != nil {
			return fmt.Errorf("deactivate product: %w", err)
		}
		return audit.Record(ctx, tx, &actor, audit.ActionDelete, before.Snapshot(), nil)
	})
}

// AdjustStock applies delta to stock under a row lock. The result must stay >= 0.
func (r *Repo) AdjustStock(ctx context.Context, actor, id int64, delta int, reason string) (Product, error) {
	if delta == 0 {
		return Product{}, apperr.Validation("delta must not be zero")
	}
	var after Product
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		before, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		next := before.Stock + delta
		if next < 0 {
			return apperr.Validation("stock would become negative (%d%+d)", before.Stock, delta)
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, id, next); err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
		after = before
		after.Stock = next
		snap := stockSnapshot{Snapshot: after.Snapshot(), Reason: reason}
		return audit.Record(ctx, tx, &actor, audit.ActionAdjustStock, before.Snapshot(), snap)
	})
	return after, err
}

type stockSnapshot struct {
	Snapshot
	Reason string `json:"reason,omitempty"`
}
