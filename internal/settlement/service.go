// Package settlement applies payment provider callbacks to orders, exactly
// once per provider delivery, either inline or from the payment.callbacks topic.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/percystore/smartsales/internal/apperr"
	kafkax "github.com/percystore/smartsales/internal/kafka"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/percystore/smartsales/internal/payments"
	"github.com/percystore/smartsales/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Settler is satisfied by *orders.Engine.
type Settler interface {
	Settle(ctx context.Context, r payments.Reading) (orders.SettleResult, error)
}

type Service struct {
	Settler     Settler
	Redis       redis.Cmdable
	Callbacks   orders.Publisher // payment.callbacks; nil settles inline only
	ServiceName string
	Now         func() time.Time
}

// SettleOutcomeDuplicate marks a delivery that was already processed.
const SettleOutcomeDuplicate orders.SettleOutcome = "duplicate"

func dedupKey(r payments.Reading) string {
	return fmt.Sprintf(redisx.KeyDedup, "settlement", r.DedupID())
}

// Apply settles r unless the same delivery was already claimed. A failed
// settlement releases the claim so the provider or the consumer can retry.
func (s *Service) Apply(ctx context.Context, r payments.Reading) (orders.SettleResult, error) {
	key := dedupKey(r)
	claimed, err := redisx.Claim(ctx, s.Redis, key, redisx.TTLDedup)
	if err != nil {
		// the engine re-checks order status under lock, so settling without dedup is still safe
		slog.WarnContext(ctx, "dedup unavailable, settling anyway", "key", key, "err", err)
		claimed = true
	}
	if !claimed {
		slog.InfoContext(ctx, "duplicate payment callback", "provider", r.Provider, "trx", r.ExternalReference)
		return orders.SettleResult{Outcome: SettleOutcomeDuplicate}, nil
	}
	res, err := s.Settler.Settle(ctx, r)
	if err != nil {
		if rerr := redisx.Release(ctx, s.Redis, key); rerr != nil {
			slog.WarnContext(ctx, "release dedup claim", "key", key, "err", rerr)
		}
		return orders.SettleResult{}, err
	}
	slog.InfoContext(ctx, "payment callback settled",
		"provider", r.Provider, "trx", r.ExternalReference, "outcome", res.Outcome, "order_id", res.OrderID)
	return res, nil
}

// Async reports whether callbacks are handed to the settlement worker.
func (s *Service) Async() bool { return s.Callbacks != nil }

// Enqueue publishes r to payment.callbacks for the settlement worker.
func (s *Service) Enqueue(r payments.Reading) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentCallback,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: r.ExternalReference,
		Payload:       kafkax.MustMarshal(orders.PaymentCallbackPayload(r)),
	}
	s.Callbacks.Publish(orders.PartitionKey(r.ExternalReference), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(orders.EventPaymentCallback, 1)...)
}

// HandleCallback is the payment.callbacks consumer handler. Malformed
// messages are logged and committed; storage errors are returned so the
// consumer retries the message before moving past it.
func (s *Service) HandleCallback(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		slog.ErrorContext(ctx, "undecodable callback envelope", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != orders.EventPaymentCallback {
		return nil
	}
	r, err := kafkax.UnwrapPayload[orders.PaymentCallbackPayload](env.Payload)
	if err != nil {
		slog.ErrorContext(ctx, "undecodable callback payload", "event_id", env.EventID, "err", err)
		return nil
	}
	_, err = s.Apply(ctx, r)
	if errors.Is(err, apperr.ErrValidation) {
		slog.ErrorContext(ctx, "rejected payment callback", "event_id", env.EventID, "err", err)
		return nil
	}
	return err
}
