// Package verify issues and checks one-time 6-digit codes for email and phone ownership.
package verify

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/redisx"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// ErrNotConfigured is returned by senders that lack provider credentials.
var ErrNotConfigured = errors.New("verify: sender not configured")

// Store keeps codes for a limited time. Set resets the miss count of key.
// ConsumeIfMatch deletes the entry only when code matches, atomically, and
// drops it after maxAttempts misses.
type Store interface {
	Set(ctx context.Context, key, code string, ttl time.Duration) error
	ConsumeIfMatch(ctx context.Context, key, code string, maxAttempts int) (bool, error)
}

// DefaultMaxAttempts is the number of wrong guesses that burn a code.
const DefaultMaxAttempts = 5

type Sender interface {
	Send(ctx context.Context, ch Channel, to, code string) error
}

type Service struct {
	Store Store
	Email Sender
	Phone Sender

	// Production disables returning the code when delivery is impossible.
	Production bool
	TTL        time.Duration
	// MaxAttempts wrong guesses burn the code; 0 means DefaultMaxAttempts.
	MaxAttempts int
	NewCode     func() (string, error)
}

type Issued struct {
	Channel     Channel `json:"channel"`
	Destination string  `json:"destination"`
	ExpiresIn   int     `json:"expires_in"`
	DevCode     string  `json:"dev_code,omitempty"`
}

// Normalize returns the canonical destination for ch, or a validation error.
func Normalize(ch Channel, dest string) (string, error) {
	dest = strings.TrimSpace(dest)
	switch ch {
	case ChannelEmail:
		dest = strings.ToLower(dest)
		if !strings.Contains(dest, "@") {
			return "", apperr.Validation("invalid email %q", dest)
		}
	case ChannelSMS, ChannelWhatsApp:
		dest = strings.TrimPrefix(dest, "whatsapp:")
		dest = strings.ReplaceAll(dest, " ", "")
		if len(dest) < 7 {
			return "", apperr.Validation("invalid phone number %q", dest)
		}
	default:
		return "", apperr.Validation("unknown channel %q", ch)
	}
	return dest, nil
}

// Key is the store key for a normalized destination. SMS and WhatsApp share the phone namespace.
func Key(ch Channel, dest string) string {
	if ch == ChannelEmail {
		return fmt.Sprintf(redisx.KeyVerifyEmail, dest)
	}
	return fmt.Sprintf(redisx.KeyVerifyTel, dest)
}

// RandomCode returns a zero-padded 6-digit code from crypto/rand.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return redisx.TTLVerifyCode
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (s *Service) sender(ch Channel) Sender {
	if ch == ChannelEmail {
		return s.Email
	}
	return s.Phone
}

// Issue stores a fresh code for the destination and delivers it. Outside
// production a failed or unconfigured delivery returns the code instead.
func (s *Service) Issue(ctx context.Context, ch Channel, dest string) (Issued, error) {
	dest, err := Normalize(ch, dest)
	if err != nil {
		return Issued{}, err
	}
	gen := s.NewCode
	if gen == nil {
		gen = RandomCode
	}
	code, err := gen()
	if err != nil {
		return Issued{}, fmt.Errorf("generate code: %w", err)
	}
	if err := s.Store.Set(ctx, Key(ch, dest), code, s.ttl()); err != nil {
		return Issued{}, fmt.Errorf("store code: %w", err)
	}
	out := Issued{Channel: ch, Destination: dest, ExpiresIn: int(s.ttl().Seconds())}

	sendErr := ErrNotConfigured
	if snd := s.sender(ch); snd != nil {
		sendErr = snd.Send(ctx, ch, dest, code)
	}
	if sendErr == nil {
		return out, nil
	}
	if s.Production {
		return Issued{}, apperr.External(sendErr, "could not deliver the %s code", ch)
	}
	slog.Warn("verification code not delivered, returning it in the response",
		"channel", ch, "destination", dest, "err", sendErr)
	out.DevCode = code
	return out, nil
}

// Check consumes the code for the destination. A wrong code leaves the stored
// one in place until MaxAttempts misses, after which a new code must be issued.
func (s *Service) Check(ctx context.Context, ch Channel, dest, code string) error {
	dest, err := Normalize(ch, dest)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return apperr.Validation("invalid or expired code")
	}
	ok, err := s.Store.ConsumeIfMatch(ctx, Key(ch, dest), code, s.maxAttempts())
	if err != nil {
		return fmt.Errorf("check code: %w", err)
	}
	if !ok {
		return apperr.Validation("invalid or expired code")
	}
	return nil
}
