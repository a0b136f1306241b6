package orders

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

// Repo is the Postgres Store plus the read side used by the HTTP handlers.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		return fn(pgTx{tx})
	})
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) LockActiveCart(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM carts WHERE user_id=$1 AND status='ACTIVE' FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("no active cart")
	}
	return id, err
}

func (t pgTx) CartLines(ctx context.Context, cartID int64) ([]CartLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT ci.product_id, ci.qty, ci.price_snapshot, p.name, p.color, p.size,
		       p.warranty_months, p.stock, p.is_active
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1 ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CartLine, error) {
		var l CartLine
		err := row.Scan(&l.ProductID, &l.Qty, &l.PriceSnapshot, &l.Name, &l.Color, &l.Size,
			&l.WarrantyMonths, &l.Stock, &l.Active)
		return l, err
	})
}

func (t pgTx) MarkCartConverted(ctx context.Context, cartID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE carts SET status='CONVERTED' WHERE id=$1 AND status='ACTIVE'`, cartID)
	return err
}

func (t pgTx) AddressOwnedBy(ctx context.Context, addressID, userID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM user_addresses WHERE id=$1 AND user_id=$2)`, addressID, userID).Scan(&ok)
	return ok, err
}

func (t pgTx) InsertOrder(ctx context.Context, o *Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders(user_id, status, transaction_number, transaction_status, subtotal, discount_total,
		                   tax_total, shipping_total, grand_total, shipping_address_id, billing_address_id,
		                   payment_method, customer_name, customer_document, customer_phone, observation, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id`,
		o.UserID, string(o.Status), o.TransactionNumber, string(o.TransactionStatus), o.Subtotal, o.DiscountTotal,
		o.TaxTotal, o.ShippingTotal, o.GrandTotal, o.ShippingAddressID, o.BillingAddressID,
		o.PaymentMethod, o.CustomerName, o.CustomerDocument, o.CustomerPhone, o.Observation, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t pgTx) InsertItems(ctx context.Context, orderID int64, items []Item) error {
	for i := range items {
		it := &items[i]
		it.OrderID = orderID
		err := t.tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, name_snapshot, color_snapshot, size_snapshot,
			                        warranty_months_snapshot, warranty_expires_at, qty, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING id`,
			orderID, it.ProductID, it.Name, it.Color, it.Size, it.WarrantyMonths, it.WarrantyExpiresAt,
			it.Qty, it.UnitPrice, it.LineTotal,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

const orderCols = `id, user_id, status, transaction_number, transaction_status, subtotal, discount_total,
	tax_total, shipping_total, grand_total, shipping_address_id, billing_address_id, payment_method,
	customer_name, customer_document, customer_phone, observation, created_at, paid_at, approved_by,
	voided_at, voided_by`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o              Order
		status, txStat string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.TransactionNumber, &txStat, &o.Subtotal, &o.DiscountTotal,
		&o.TaxTotal, &o.ShippingTotal, &o.GrandTotal, &o.ShippingAddressID, &o.BillingAddressID, &o.PaymentMethod,
		&o.CustomerName, &o.CustomerDocument, &o.CustomerPhone, &o.Observation, &o.CreatedAt, &o.PaidAt,
		&o.ApprovedBy, &o.VoidedAt, &o.VoidedBy)
	o.Status, o.TransactionStatus = Status(status), TxStatus(txStat)
	return o, err
}

func orderNotFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("order %s not found", what)
	}
	return err
}

func (t pgTx) LockOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	return o, orderNotFound(err, fmt.Sprint(id))
}

func (t pgTx) LockOrderByTransaction(ctx context.Context, trx string) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE transaction_number=$1 FOR UPDATE`, trx))
	return o, orderNotFound(err, trx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, name_snapshot, color_snapshot, size_snapshot,
		       warranty_months_snapshot, warranty_expires_at, qty, unit_price, line_total
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Color, &it.Size,
			&it.WarrantyMonths, &it.WarrantyExpiresAt, &it.Qty, &it.UnitPrice, &it.LineTotal)
		return it, err
	})
}

func (t pgTx) Items(ctx context.Context, orderID int64) ([]Item, error) {
	return loadItems(ctx, t.tx, orderID)
}

func (t pgTx) UpdateOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, transaction_status=$3, payment_method=$4, observation=$5,
		       paid_at=$6, approved_by=$7, voided_at=$8, voided_by=$9
		WHERE id=$1`,
		o.ID, string(o.Status), string(o.TransactionStatus), o.PaymentMethod, o.Observation,
		o.PaidAt, o.ApprovedBy, o.VoidedAt, o.VoidedBy)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (t pgTx) LockStock(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(productIDs))
	for _, id := range productIDs {
		var stock int
		err := t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, id).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("product %d not found", id)
		}
		if err != nil {
			return nil, err
		}
		out[id] = stock
	}
	return out, nil
}

func (t pgTx) SetStock(ctx context.Context, productID int64, stock int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, productID, stock)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("product %d not found", productID)
	}
	return nil
}

// UpsertPayment keys on (provider, external_id). A SUCCEEDED row is never downgraded.
func (t pgTx) UpsertPayment(ctx context.Context, p *Payment) error {
	var status string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payment_transactions(order_id, provider, amount, currency, status, external_id,
		                                 external_reference, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (provider, external_id) DO UPDATE SET
		    status = CASE WHEN payment_transactions.status = 'SUCCEEDED'
		                  THEN payment_transactions.status ELSE EXCLUDED.status END,
		    amount = EXCLUDED.amount,
		    metadata = COALESCE(EXCLUDED.metadata, payment_transactions.metadata),
		    updated_at = now()
		RETURNING id, status, created_at, updated_at`,
		p.OrderID, p.Provider, p.Amount, p.Currency, string(p.Status), p.ExternalID,
		p.ExternalReference, nullJSON(p.Metadata),
	).Scan(&p.ID, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	p.Status = PaymentStatus(status)
	return nil
}

func (t pgTx) Audit(ctx context.Context, e audit.Entry) error {
	return audit.Append(ctx, t.tx, e)
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// ---- read side ----

func (r *Repo) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, orderNotFound(err, fmt.Sprint(id))
	}
	o.Items, err = loadItems(ctx, r.DB, o.ID)
	return o, err
}

func (r *Repo) GetByTransaction(ctx context.Context, trx string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE transaction_number=$1`, trx))
	if err != nil {
		return Order{}, orderNotFound(err, trx)
	}
	o.Items, err = loadItems(ctx, r.DB, o.ID)
	return o, err
}

type ListFilter struct {
	UserID            *int64
	Status            Status
	TransactionStatus TxStatus
	Limit             int
	Offset            int
}

// List returns orders newest first, without items.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.TransactionStatus != "" {
		add("transaction_status = $%d", string(f.TransactionStatus))
	}
	q := `SELECT ` + orderCols + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) { return scanOrder(row) })
}

func (r *Repo) Payments(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, provider, amount, currency, status, external_id, external_reference,
		       metadata, created_at, updated_at
		FROM payment_transactions WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var (
			p      Payment
			status string
		)
		err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.Amount, &p.Currency, &status, &p.ExternalID,
			&p.ExternalReference, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
		p.Status = PaymentStatus(status)
		return p, err
	})
}
