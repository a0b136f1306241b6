// Package pgtest opens a migrated, empty database for repository tests.
// Tests using it run only when SMARTSALES_TEST_DSN is set.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/percystore/smartsales/internal/postgres"
	"github.com/shopspring/decimal"
)

const EnvDSN = "SMARTSALES_TEST_DSN"

// Open connects, applies the migrations and truncates every table.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	ctx := context.Background()
	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = db.Exec(ctx, `TRUNCATE reports, admin_audit_logs, payment_transactions, order_items, orders,
		cart_items, carts, products, categories, brands, user_addresses, users RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func User(t testing.TB, db *pgxpool.Pool, username string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(context.Background(), `
		INSERT INTO users(username, email, password_hash) VALUES ($1, $1 || '@test.bo', 'x')
		RETURNING id`, username).Scan(&id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func Product(t testing.TB, db *pgxpool.Pool, name, price string, stock int) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(context.Background(), `
		INSERT INTO products(name, price, stock) VALUES ($1, $2, $3) RETURNING id`,
		name, decimal.RequireFromString(price), stock).Scan(&id)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

func Stock(t testing.TB, db *pgxpool.Pool, productID int64) int {
	t.Helper()
	var n int
	if err := db.QueryRow(context.Background(), `SELECT stock FROM products WHERE id=$1`, productID).Scan(&n); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return n
}
