package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/auth"
	"github.com/percystore/smartsales/internal/verify"
	"golang.org/x/crypto/bcrypt"
)

// Accounts is the account storage the service needs. *Repo implements it.
type Accounts interface {
	Insert(ctx context.Context, u *User, hash string, actor *int64) error
	Credentials(ctx context.Context, login string) (User, string, error)
	Update(ctx context.Context, actor, id int64, in AdminUserInput, hash *string) (User, error)
	SetEmail(ctx context.Context, id int64, email string) (User, error)
	SetPhone(ctx context.Context, id int64, phone string) (User, error)
}

// Checker consumes a verification code.
type Checker interface {
	Check(ctx context.Context, ch verify.Channel, dest, code string) error
}

type Service struct {
	Accounts Accounts
	Keys     *auth.Keys
	Codes    Checker
	Cost     int // bcrypt cost, 0 means bcrypt.DefaultCost
}

func (s *Service) hash(pw string) (string, error) {
	if len(pw) < 8 {
		return "", apperr.Validation("password must have at least 8 characters")
	}
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apperr.Validation("password is too long")
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Register creates a buyer account. The username defaults to the email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	email := normEmail(in.Email)
	if !strings.Contains(email, "@") {
		return User{}, apperr.Validation("invalid email")
	}
	h, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{Username: strings.TrimSpace(in.Username), Email: email, IsActive: true}
	if u.Username == "" {
		u.Username = email
	}
	u.FirstName, u.LastName = splitName(in.FullName)
	if err := s.Accounts.Insert(ctx, &u, h, nil); err != nil {
		return User{}, err
	}
	return u, nil
}

// Login checks the password and issues an access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (Token, error) {
	u, hash, err := s.Accounts.Credentials(ctx, strings.TrimSpace(in.Username))
	if errors.Is(err, apperr.ErrNotFound) {
		return Token{}, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return Token{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)) != nil {
		return Token{}, apperr.Unauthorized("invalid credentials")
	}
	tok, exp, err := s.Keys.Issue(u.ID, u.IsAdmin)
	if err != nil {
		return Token{}, err
	}
	role := auth.RoleBuyer
	if u.IsAdmin {
		role = auth.RoleAdmin
	}
	return Token{Access: tok, ExpiresAt: exp, Roles: []string{role}}, nil
}

// Create is the admin account creation, audited.
func (s *Service) Create(ctx context.Context, actor int64, in AdminUserInput) (User, error) {
	if in.Username == nil || in.Email == nil || in.Password == nil {
		return User{}, apperr.Validation("username, email and password are required")
	}
	h, err := s.hash(*in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{IsActive: true}
	in.apply(&u)
	if err := s.Accounts.Insert(ctx, &u, h, &actor); err != nil {
		return User{}, err
	}
	return u, nil
}

// Update is the admin edit, audited. A password in the input is re-hashed.
func (s *Service) Update(ctx context.Context, actor, id int64, in AdminUserInput) (User, error) {
	var hash *string
	if in.Password != nil && *in.Password != "" {
		h, err := s.hash(*in.Password)
		if err != nil {
			return User{}, err
		}
		hash = &h
	}
	return s.Accounts.Update(ctx, actor, id, in, hash)
}

// ChangeEmail consumes a code sent to the new address before switching to it.
func (s *Service) ChangeEmail(ctx context.Context, userID int64, email, code string) (User, error) {
	email, err := verify.Normalize(verify.ChannelEmail, email)
	if err != nil {
		return User{}, err
	}
	if err := s.Codes.Check(ctx, verify.ChannelEmail, email, code); err != nil {
		return User{}, err
	}
	return s.Accounts.SetEmail(ctx, userID, email)
}

// ChangePhone consumes a code sent by SMS or WhatsApp to the new number.
func (s *Service) ChangePhone(ctx context.Context, userID int64, phone, code string) (User, error) {
	phone, err := verify.Normalize(verify.ChannelSMS, phone)
	if err != nil {
		return User{}, err
	}
	if err := s.Codes.Check(ctx, verify.ChannelSMS, phone, code); err != nil {
		return User{}, err
	}
	return s.Accounts.SetPhone(ctx, userID, phone)
}
