package cart

import (
	"testing"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTotal(t *testing.T) {
	c := Cart{Items: []Item{
		{ProductID: 1, Qty: 2, PriceSnapshot: decimal.RequireFromString("10.50")},
		{ProductID: 2, Qty: 1, PriceSnapshot: decimal.RequireFromString("3.25")},
	}}
	c.Total()

	assert.Equal(t, "21", c.Items[0].LineTotal.String())
	assert.Equal(t, "24.25", c.Subtotal.String())
}

func TestTotalEmpty(t *testing.T) {
	var c Cart
	c.Total()
	assert.True(t, c.Subtotal.IsZero())
}

func TestCheckQty(t *testing.T) {
	assert.NoError(t, checkQty("Tostadora", 3, 3))
	assert.ErrorIs(t, checkQty("Tostadora", 4, 3), apperr.ErrValidation)
	assert.ErrorIs(t, checkQty("Tostadora", 0, 3), apperr.ErrValidation)
}

func TestCurrencyDefault(t *testing.T) {
	assert.Equal(t, "BOB", (&Repo{}).currency())
	assert.Equal(t, "USD", (&Repo{Currency: "USD"}).currency())
}
