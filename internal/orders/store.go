package orders

import (
	"context"

	"github.com/percystore/smartsales/internal/audit"
)

// Store runs fn in one database transaction; fn's error rolls everything back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of row operations the engine performs inside a transaction.
// Lock* methods take exclusive row locks held until the transaction ends.
type Tx interface {
	// LockActiveCart returns the id of the user's ACTIVE cart, or NotFound.
	LockActiveCart(ctx context.Context, userID int64) (int64, error)
	CartLines(ctx context.Context, cartID int64) ([]CartLine, error)
	MarkCartConverted(ctx context.Context, cartID int64) error
	AddressOwnedBy(ctx context.Context, addressID, userID int64) (bool, error)

	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	LockOrder(ctx context.Context, id int64) (Order, error)
	LockOrderByTransaction(ctx context.Context, trx string) (Order, error)
	Items(ctx context.Context, orderID int64) ([]Item, error)
	UpdateOrder(ctx context.Context, o Order) error

	// LockStock locks the product rows in the given order and returns their stock.
	LockStock(ctx context.Context, productIDs []int64) (map[int64]int, error)
	SetStock(ctx context.Context, productID int64, stock int) error

	UpsertPayment(ctx context.Context, p *Payment) error

	Audit(ctx context.Context, e audit.Entry) error
}
