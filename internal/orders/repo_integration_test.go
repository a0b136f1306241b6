//go:build integration

package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/payments"
	"github.com/percystore/smartsales/internal/postgres/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillCart(t *testing.T, db *pgxpool.Pool, userID, productID int64, qty int, price string) {
	t.Helper()
	ctx := context.Background()
	var cartID int64
	err := db.QueryRow(ctx, `
		INSERT INTO carts(user_id) VALUES ($1)
		ON CONFLICT (user_id) WHERE status = 'ACTIVE' DO UPDATE SET currency = carts.currency
		RETURNING id`, userID).Scan(&cartID)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO cart_items(cart_id, product_id, qty, price_snapshot) VALUES ($1,$2,$3,$4)`,
		cartID, productID, qty, decimal.RequireFromString(price))
	require.NoError(t, err)
}

func pgEngine(t *testing.T) (*Engine, *Repo, *pgxpool.Pool) {
	t.Helper()
	db := pgtest.Open(t)
	repo := &Repo{DB: db}
	return &Engine{Store: repo, Producer: "test"}, repo, db
}

func TestRepoCheckoutAndRead(t *testing.T) {
	e, repo, db := pgEngine(t)
	ctx := context.Background()
	uid := pgtest.User(t, db, "ana")
	pid := pgtest.Product(t, db, "Heladera", "2500.00", 4)
	fillCart(t, db, uid, pid, 2, "2500.00")

	o, err := e.Checkout(ctx, CheckoutInput{UserID: uid, PaymentMethod: "QR"})
	require.NoError(t, err)
	assert.Equal(t, 4, pgtest.Stock(t, db, pid))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Subtotal.Equal(decimal.RequireFromString("5000")))
	assert.True(t, got.Items[0].LineTotal.Equal(got.Subtotal))

	byTrx, err := repo.GetByTransaction(ctx, o.TransactionNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byTrx.ID)

	mine, err := repo.List(ctx, ListFilter{UserID: &uid, Status: StatusPending})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = e.Checkout(ctx, CheckoutInput{UserID: uid})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = repo.Get(ctx, o.ID+100)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRepoConcurrentMarkPaidTakesLastUnitOnce(t *testing.T) {
	e, _, db := pgEngine(t)
	ctx := context.Background()
	adminID := pgtest.User(t, db, "ops")
	pid := pgtest.Product(t, db, "Consola", "3999.00", 1)

	var ids []int64
	for _, name := range []string{"ana", "beto", "caro", "dani"} {
		uid := pgtest.User(t, db, name)
		fillCart(t, db, uid, pid, 1, "3999.00")
		o, err := e.Checkout(ctx, CheckoutInput{UserID: uid})
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		paid int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := e.MarkPaid(ctx, id, &adminID, "CASH")
			if err == nil {
				mu.Lock()
				paid++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrValidation)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, paid)
	assert.Equal(t, 0, pgtest.Stock(t, db, pid))
}

func TestRepoSettleKeepsSucceededPayment(t *testing.T) {
	e, repo, db := pgEngine(t)
	ctx := context.Background()
	uid := pgtest.User(t, db, "ana")
	pid := pgtest.Product(t, db, "Horno", "700.00", 2)
	fillCart(t, db, uid, pid, 1, "700.00")
	o, err := e.Checkout(ctx, CheckoutInput{UserID: uid})
	require.NoError(t, err)

	ok := payments.Reading{Provider: "stripe", EventID: "evt_1", ExternalID: "pi_1",
		ExternalReference: o.TransactionNumber, Success: true, Raw: []byte(`{"id":"evt_1"}`)}

	var wg sync.WaitGroup
	results := make([]SettleResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := ok
			r.EventID = r.EventID + string(rune('a'+i))
			res, err := e.Settle(ctx, r)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()
	outcomes := []SettleOutcome{results[0].Outcome, results[1].Outcome}
	assert.ElementsMatch(t, []SettleOutcome{SettlePaid, SettleIgnored}, outcomes)
	assert.Equal(t, 1, pgtest.Stock(t, db, pid))

	late := ok
	late.EventID, late.Success = "evt_2", false
	res, err := e.Settle(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, SettlePaymentFailed, res.Outcome)

	pays, err := repo.Payments(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.Equal(t, PaymentSucceeded, pays[0].Status)
	assert.True(t, pays[0].Amount.Equal(decimal.RequireFromString("700")))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
}

func TestRepoVoidRestoresStock(t *testing.T) {
	e, repo, db := pgEngine(t)
	ctx := context.Background()
	adminID := pgtest.User(t, db, "ops")
	uid := pgtest.User(t, db, "ana")
	a := pgtest.Product(t, db, "Mouse", "50.00", 5)
	b := pgtest.Product(t, db, "Teclado", "120.00", 5)
	fillCart(t, db, uid, b, 2, "120.00")
	fillCart(t, db, uid, a, 1, "50.00")
	o, err := e.Checkout(ctx, CheckoutInput{UserID: uid})
	require.NoError(t, err)

	_, err = e.MarkPaid(ctx, o.ID, &adminID, "")
	require.NoError(t, err)
	assert.Equal(t, 4, pgtest.Stock(t, db, a))
	assert.Equal(t, 3, pgtest.Stock(t, db, b))

	v, err := e.Void(ctx, o.ID, "cliente desistió", adminID)
	require.NoError(t, err)
	assert.Equal(t, TxVoid, v.TransactionStatus)
	assert.Equal(t, 5, pgtest.Stock(t, db, a))
	assert.Equal(t, 5, pgtest.Stock(t, db, b))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Contains(t, got.Observation, "ANULADA: cliente desistió")

	var audits int
	snap := o.Snapshot()
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM admin_audit_logs WHERE model_name = $1 AND object_id = $2`,
		snap.ModelName(), snap.ObjectID()).Scan(&audits))
	assert.Equal(t, 2, audits)
}
