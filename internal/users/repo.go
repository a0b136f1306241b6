package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/audit"
	"github.com/percystore/smartsales/internal/postgres"
)

type Repo struct{ DB *pgxpool.Pool }

const userCols = `id, username, email, first_name, last_name, phone, birthdate, avatar_url,
	is_admin, is_active, created_at, updated_at`

func scanUser(row pgx.Row, extra ...any) (User, error) {
	var u User
	dst := []any{&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.Birthdate,
		&u.AvatarURL, &u.IsAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt}
	err := row.Scan(append(dst, extra...)...)
	return u, err
}

func uniqueErr(err error) error {
	if postgres.IsUniqueViolation(err) {
		return apperr.Conflict("username or email already in use")
	}
	return err
}

// Insert stores a new account. With an actor the creation is audited.
func (r *Repo) Insert(ctx context.Context, u *User, hash string, actor *int64) error {
	return postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO users(username, email, password_hash, first_name, last_name, is_admin, is_active)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING `+userCols,
			u.Username, u.Email, hash, u.FirstName, u.LastName, u.IsAdmin, u.IsActive)
		created, err := scanUser(row)
		if err != nil {
			return uniqueErr(err)
		}
		*u = created
		if actor == nil {
			return nil
		}
		return audit.Record(ctx, tx, actor, audit.ActionCreateUser, nil, u.Snapshot())
	})
}

// Credentials finds an active account by username or email.
func (r *Repo) Credentials(ctx context.Context, login string) (User, string, error) {
	var hash string
	u, err := scanUser(r.DB.QueryRow(ctx, `
		SELECT `+userCols+`, password_hash FROM users
		WHERE (username = $1 OR email = lower($1)) AND is_active`, login), &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", apperr.NotFound("user not found")
	}
	return u, hash, err
}

func (r *Repo) Get(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound("user %d not found", id)
	}
	return u, err
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]User, error) {
	var (
		where []string
		args  []any
	)
	if !f.IncludeInactive {
		where = append(where, "is_active")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(username ILIKE $%[1]d OR email ILIKE $%[1]d OR first_name || ' ' || last_name ILIKE $%[1]d)", len(args)))
	}
	sql := `SELECT ` + userCols + ` FROM users`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, max(f.Offset, 0))
	sql += fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) { return scanUser(row) })
}

func lockUser(ctx context.Context, tx pgx.Tx, id int64) (User, error) {
	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound("user %d not found", id)
	}
	return u, err
}

func saveUser(ctx context.Context, tx pgx.Tx, u User) (User, error) {
	saved, err := scanUser(tx.QueryRow(ctx, `
		UPDATE users SET username=$2, email=$3, first_name=$4, last_name=$5, phone=$6, birthdate=$7,
			avatar_url=$8, is_admin=$9, is_active=$10, updated_at=now()
		WHERE id=$1
		RETURNING `+userCols,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.Phone, u.Birthdate, u.AvatarURL, u.IsAdmin, u.IsActive))
	return saved, uniqueErr(err)
}

// mutate locks the user, lets fn change it and saves it, with one audit entry.
func (r *Repo) mutate(ctx context.Context, actor *int64, action audit.Action, id int64, fn func(pgx.Tx, *User) error) (User, error) {
	var out User
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		u, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		before := u.Snapshot()
		if err := fn(tx, &u); err != nil {
			return err
		}
		if out, err = saveUser(ctx, tx, u); err != nil {
			return err
		}
		if action == "" {
			return nil
		}
		return audit.Record(ctx, tx, actor, action, before, out.Snapshot())
	})
	return out, err
}

// UpdateProfile applies the caller's own profile changes. Not audited.
func (r *Repo) UpdateProfile(ctx context.Context, id int64, in ProfileInput) (User, error) {
	return r.mutate(ctx, nil, "", id, func(_ pgx.Tx, u *User) error {
		if in.FirstName != nil {
			u.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			u.LastName = strings.TrimSpace(*in.LastName)
		}
		if in.Phone != nil {
			u.Phone = in.Phone
		}
		if in.AvatarURL != nil {
			u.AvatarURL = in.AvatarURL
		}
		if in.Birthdate != nil {
			d, err := time.Parse("2006-01-02", *in.Birthdate)
			if err != nil {
				return apperr.Validation("birthdate: expected YYYY-MM-DD")
			}
			u.Birthdate = &d
		}
		return nil
	})
}

// Update is the admin edit. A non-nil hash replaces the password.
func (r *Repo) Update(ctx context.Context, actor, id int64, in AdminUserInput, hash *string) (User, error) {
	return r.mutate(ctx, &actor, audit.ActionUpdateUser, id, func(tx pgx.Tx, u *User) error {
		in.apply(u)
		if hash == nil {
			return nil
		}
		_, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, *hash)
		return err
	})
}

// Delete deactivates the account; orders keep referencing it.
func (r *Repo) Delete(ctx context.Context, actor, id int64) error {
	if actor == id {
		return apperr.Validation("you cannot delete your own account")
	}
	_, err := r.mutate(ctx, &actor, audit.ActionDeleteUser, id, func(_ pgx.Tx, u *User) error {
		if !u.IsActive {
			return apperr.NotFound("user %d not found", id)
		}
		u.IsActive = false
		return nil
	})
	return err
}

func (r *Repo) SetEmail(ctx context.Context, id int64, email string) (User, error) {
	return r.mutate(ctx, &id, audit.ActionChangeEmail, id, func(_ pgx.Tx, u *User) error {
		u.Email = email
		return nil
	})
}

func (r *Repo) SetPhone(ctx context.Context, id int64, phone string) (User, error) {
	return r.mutate(ctx, &id, audit.ActionChangePhone, id, func(_ pgx.Tx, u *User) error {
		u.Phone = &phone
		return nil
	})
}
