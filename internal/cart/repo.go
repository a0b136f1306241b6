package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/catalog"
	"github.com/percystore/smartsales/internal/postgres"
	"github.com/shopspring/decimal"
)

type Repo struct {
	DB       *pgxpool.Pool
	Currency string
}

// activeCart returns the user's ACTIVE cart locked for the rest of tx, creating it when missing.
func (r *Repo) activeCart(ctx context.Context, tx pgx.Tx, userID int64) (Cart, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO carts(user_id, status, currency) VALUES ($1, 'ACTIVE', $2)
		ON CONFLICT (user_id) WHERE status = 'ACTIVE' DO NOTHING`, userID, r.currency())
	if err != nil {
		return Cart{}, fmt.Errorf("ensure cart: %w", err)
	}
	c := Cart{UserID: userID}
	err = tx.QueryRow(ctx, `
		SELECT id, status, currency, created_at FROM carts
		WHERE user_id=$1 AND status='ACTIVE' FOR UPDATE`, userID,
	).Scan(&c.ID, &c.Status, &c.Currency, &c.CreatedAt)
	if err != nil {
		return Cart{}, fmt.Errorf("lock cart: %w", err)
	}
	return c, nil
}

func (r *Repo) currency() string {
	if r.Currency == "" {
		return "BOB"
	}
	return r.Currency
}

func loadItems(ctx context.Context, q pgx.Tx, c *Cart) error {
	rows, err := q.Query(ctx, `
		SELECT ci.id, ci.product_id, p.name, ci.qty, ci.price_snapshot
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1 ORDER BY ci.id`, c.ID)
	if err != nil {
		return err
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.ProductID, &it.Name, &it.Qty, &it.PriceSnapshot)
		return it, err
	})
	if err != nil {
		return err
	}
	c.Total()
	return nil
}

func (r *Repo) Get(ctx context.Context, userID int64) (Cart, error) {
	var c Cart
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		if c, err = r.activeCart(ctx, tx, userID); err != nil {
			return err
		}
		return loadItems(ctx, tx, &c)
	})
	return c, err
}

type liveProduct struct {
	name   string
	stock  int
	active bool
	final  decimal.Decimal
}

func productShared(ctx context.Context, tx pgx.Tx, id int64) (liveProduct, error) {
	var (
		p              liveProduct
		price          decimal.Decimal
		sale, discount decimal.NullDecimal
	)
	err := tx.QueryRow(ctx, `
		SELECT name, stock, is_active, price, sale_price, discount_percent
		FROM products WHERE id=$1 FOR SHARE`, id,
	).Scan(&p.name, &p.stock, &p.active, &price, &sale, &discount)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !p.active) {
		return liveProduct{}, apperr.NotFound("product %d not found", id)
	}
	if err != nil {
		return liveProduct{}, err
	}
	p.final = catalog.FinalPrice(price, sale, discount)
	return p, nil
}

// Add puts qty of a product in the cart, merging with an existing line.
// The merged quantity is checked against live stock and the snapshot price refreshed.
func (r *Repo) Add(ctx context.Context, userID, productID int64, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, apperr.Validation("qty must be positive")
	}
	var c Cart
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		if c, err = r.activeCart(ctx, tx, userID); err != nil {
			return err
		}
		p, err := productShared(ctx, tx, productID)
		if err != nil {
			return err
		}
		var existing int
		err = tx.QueryRow(ctx, `SELECT qty FROM cart_items WHERE cart_id=$1 AND product_id=$2`, c.ID, productID).Scan(&existing)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if err := checkQty(p.name, existing+qty, p.stock); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO cart_items(cart_id, product_id, qty, price_snapshot) VALUES ($1,$2,$3,$4)
			ON CONFLICT (cart_id, product_id) DO UPDATE SET qty = EXCLUDED.qty, price_snapshot = EXCLUDED.price_snapshot`,
			c.ID, productID, existing+qty, p.final)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}
		return loadItems(ctx, tx, &c)
	})
	return c, err
}

// Update sets the quantity of a line and refreshes its snapshot price; qty <= 0 removes it.
func (r *Repo) Update(ctx context.Context, userID, itemID int64, qty int) (Cart, error) {
	if qty <= 0 {
		return r.Remove(ctx, userID, itemID)
	}
	var c Cart
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		if c, err = r.activeCart(ctx, tx, userID); err != nil {
			return err
		}
		var productID int64
		err = tx.QueryRow(ctx, `SELECT product_id FROM cart_items WHERE id=$1 AND cart_id=$2`, itemID, c.ID).Scan(&productID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("cart item %d not found", itemID)
		}
		if err != nil {
			return err
		}
		p, err := productShared(ctx, tx, productID)
		if err != nil {
			return err
		}
		if err := checkQty(p.name, qty, p.stock); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE cart_items SET qty=$2, price_snapshot=$3 WHERE id=$1`, itemID, qty, p.final); err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return loadItems(ctx, tx, &c)
	})
	return c, err
}

func (r *Repo) Remove(ctx context.Context, userID, itemID int64) (Cart, error) {
	var c Cart
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		if c, err = r.activeCart(ctx, tx, userID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id=$1 AND cart_id=$2`, itemID, c.ID)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("cart item %d not found", itemID)
		}
		return loadItems(ctx, tx, &c)
	})
	return c, err
}
