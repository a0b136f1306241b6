// Package auth issues and verifies the bearer tokens used by the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/percystore/smartsales/internal/apperr"
)

const (
	RoleAdmin = "admin"
	RoleBuyer = "buyer"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// UserID is the numeric subject of the token.
func (c Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(Claims)
	return c, ok
}

type Keys struct {
	Secret []byte
	TTL    time.Duration
	now    func() time.Time
}

func NewKeys(secret string, ttl time.Duration) *Keys {
	return &Keys{Secret: []byte(secret), TTL: ttl, now: time.Now}
}

// Issue signs an HS256 access token for the user.
func (k *Keys) Issue(userID int64, admin bool) (string, time.Time, error) {
	now := k.now()
	exp := now.Add(k.TTL)
	roles := []string{RoleBuyer}
	if admin {
		roles = []string{RoleAdmin}
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles: roles,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(k.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tok, exp, nil
}

func (k *Keys) Parse(raw string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return k.Secret, nil
	}, jwt.WithTimeFunc(k.now))
	if err != nil {
		return Claims{}, err
	}
	return c, nil
}

// Authenticate requires a valid bearer token and stores the claims in the request context.
func (k *Keys) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			writeErr(w, http.StatusUnauthorized, "authorization header is missing")
			return
		}
		c, err := k.Parse(raw)
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), c)))
	})
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := FromContext(r.Context())
		if !ok {
			writeErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !c.HasRole(RoleAdmin) {
			writeErr(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Caller returns the authenticated claims or an Unauthorized error.
func Caller(ctx context.Context) (Claims, error) {
	c, ok := FromContext(ctx)
	if !ok {
		return Claims{}, apperr.Unauthorized("unauthorized")
	}
	return c, nil
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, "{%q:%q}\n", "error", msg)
}
