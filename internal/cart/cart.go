// Package cart keeps the single ACTIVE cart of each user.
package cart

import (
	"time"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/shopspring/decimal"
)

const (
	StatusActive    = "ACTIVE"
	StatusConverted = "CONVERTED"
)

type Cart struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Status    string          `json:"status"`
	Currency  string          `json:"currency"`
	Items     []Item          `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	CreatedAt time.Time       `json:"created_at"`
}

type Item struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	Qty           int             `json:"qty"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// Total fills line totals and the subtotal from the snapshot prices.
func (c *Cart) Total() {
	c.Subtotal = decimal.Zero
	for i := range c.Items {
		it := &c.Items[i]
		it.LineTotal = it.PriceSnapshot.Mul(decimal.NewFromInt(int64(it.Qty)))
		c.Subtotal = c.Subtotal.Add(it.LineTotal)
	}
}

// checkQty validates a resulting line quantity against live stock.
func checkQty(name string, qty, stock int) error {
	if qty <= 0 {
		return apperr.Validation("qty must be positive")
	}
	if qty > stock {
		return apperr.Validation("insufficient stock for %s: requested %d, available %d", name, qty, stock)
	}
	return nil
}
