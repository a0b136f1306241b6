// Package users holds accounts, profiles and shipping addresses.
package users

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Phone     *string    `json:"phone,omitempty"`
	Birthdate *time.Time `json:"birthdate,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	IsAdmin   bool       `json:"is_admin"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FullName falls back to the username when no name is set.
func (u User) FullName() string {
	if fn := strings.TrimSpace(u.FirstName + " " + u.LastName); fn != "" {
		return fn
	}
	return u.Username
}

// Profile is what a user sees about themselves.
type Profile struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Phone     *string    `json:"phone"`
	Birthdate *time.Time `json:"birthdate"`
	AvatarURL *string    `json:"avatar_url"`
	IsAdmin   bool       `json:"is_admin"`
}

func (u User) Profile() Profile {
	return Profile{
		ID: u.ID, Username: u.Username, Email: u.Email, FullName: u.FullName(),
		Phone: u.Phone, Birthdate: u.Birthdate, AvatarURL: u.AvatarURL, IsAdmin: u.IsAdmin,
	}
}

// Snapshot is the audited view of a user. The password hash is never included.
type Snapshot struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone"`
	IsAdmin   bool    `json:"is_admin"`
	IsActive  bool    `json:"is_active"`
}

func (Snapshot) ModelName() string  { return "User" }
func (s Snapshot) ObjectID() string { return strconv.FormatInt(s.ID, 10) }

func (u User) Snapshot() Snapshot {
	return Snapshot{
		ID: u.ID, Username: u.Username, Email: u.Email, FirstName: u.FirstName,
		LastName: u.LastName, Phone: u.Phone, IsAdmin: u.IsAdmin, IsActive: u.IsActive,
	}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"omitempty,min=3,max=150"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,max=150"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Token struct {
	Access    string    `json:"access"`
	ExpiresAt time.Time `json:"expires_at"`
	Roles     []string  `json:"roles"`
}

// ProfileInput updates the caller's own profile; nil fields are left unchanged.
type ProfileInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	Birthdate *string `json:"birthdate" validate:"omitempty,datetime=2006-01-02"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
}

// AdminUserInput creates or updates any account. On update nil fields are left unchanged.
type AdminUserInput struct {
	Username  *string `json:"username" validate:"omitempty,min=3,max=150"`
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Password  *string `json:"password" validate:"omitempty,min=8,max=72"`
	IsAdmin   *bool   `json:"is_admin"`
	IsActive  *bool   `json:"is_active"`
}

func (in AdminUserInput) apply(u *User) {
	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		u.Email = normEmail(*in.Email)
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.IsAdmin != nil {
		u.IsAdmin = *in.IsAdmin
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
}

type ListFilter struct {
	Query           string
	IncludeInactive bool
	Limit, Offset   int
}

type Address struct {
	ID          int64               `json:"id"`
	UserID      int64               `json:"-"`
	Label       string              `json:"label"`
	Department  string              `json:"department"`
	City        string              `json:"city"`
	AddressLine string              `json:"address_line"`
	Reference   *string             `json:"reference"`
	Lat         decimal.NullDecimal `json:"lat"`
	Lng         decimal.NullDecimal `json:"lng"`
	IsDefault   bool                `json:"is_default"`
}

type AddressInput struct {
	Label       string           `json:"label" validate:"required,max=60"`
	Department  string           `json:"department" validate:"required,max=60"`
	City        string           `json:"city" validate:"required,max=80"`
	AddressLine string           `json:"address_line" validate:"required,max=255"`
	Reference   *string          `json:"reference" validate:"omitempty,max=255"`
	Lat         *decimal.Decimal `json:"lat"`
	Lng         *decimal.Decimal `json:"lng"`
	IsDefault   bool             `json:"is_default"`
}

func (in AddressInput) address(userID int64) Address {
	a := Address{
		UserID: userID, Label: in.Label, Department: in.Department, City: in.City,
		AddressLine: in.AddressLine, Reference: in.Reference, IsDefault: in.IsDefault,
	}
	if in.Lat != nil {
		a.Lat = decimal.NewNullDecimal(*in.Lat)
	}
	if in.Lng != nil {
		a.Lng = decimal.NewNullDecimal(*in.Lng)
	}
	return a
}

// splitName puts the first word in FirstName and the rest in LastName.
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
