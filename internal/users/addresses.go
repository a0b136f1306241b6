package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/postgres"
)

const addressCols = `id, user_id, label, department, city, address_line, reference, lat, lng, is_default`

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.Department, &a.City, &a.AddressLine,
		&a.Reference, &a.Lat, &a.Lng, &a.IsDefault)
	return a, err
}

// Addresses lists the user's addresses, default first.
func (r *Repo) Addresses(ctx context.Context, userID int64) ([]Address, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+addressCols+` FROM user_addresses
		WHERE user_id = $1 ORDER BY is_default DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Address, error) { return scanAddress(row) })
}

func (r *Repo) Address(ctx context.Context, userID, id int64) (Address, error) {
	a, err := scanAddress(r.DB.QueryRow(ctx, `SELECT `+addressCols+` FROM user_addresses
		WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Address{}, apperr.NotFound("address %d not found", id)
	}
	return a, err
}

// clearDefault keeps at most one default address per user.
func clearDefault(ctx context.Context, tx pgx.Tx, userID, keep int64) error {
	_, err := tx.Exec(ctx, `UPDATE user_addresses SET is_default = FALSE
		WHERE user_id = $1 AND id <> $2 AND is_default`, userID, keep)
	return err
}

func (r *Repo) CreateAddress(ctx context.Context, userID int64, in AddressInput) (Address, error) {
	a := in.address(userID)
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		a, err = scanAddress(tx.QueryRow(ctx, `
			INSERT INTO user_addresses(user_id, label, department, city, address_line, reference, lat, lng, is_default)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING `+addressCols,
			a.UserID, a.Label, a.Department, a.City, a.AddressLine, a.Reference, a.Lat, a.Lng, a.IsDefault))
		if err != nil || !a.IsDefault {
			return err
		}
		return clearDefault(ctx, tx, userID, a.ID)
	})
	return a, err
}

func (r *Repo) UpdateAddress(ctx context.Context, userID, id int64, in AddressInput) (Address, error) {
	a := in.address(userID)
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		a, err = scanAddress(tx.QueryRow(ctx, `
			UPDATE user_addresses SET label=$3, department=$4, city=$5, address_line=$6, reference=$7,
				lat=$8, lng=$9, is_default=$10
			WHERE id = $1 AND user_id = $2
			RETURNING `+addressCols,
			id, userID, a.Label, a.Department, a.City, a.AddressLine, a.Reference, a.Lat, a.Lng, a.IsDefault))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("address %d not found", id)
		}
		if err != nil || !a.IsDefault {
			return err
		}
		return clearDefault(ctx, tx, userID, a.ID)
	})
	return a, err
}

func (r *Repo) DeleteAddress(ctx context.Context, userID, id int64) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM user_addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("address %d not found", id)
	}
	return nil
}
