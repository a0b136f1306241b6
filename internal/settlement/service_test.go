package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/percystore/smartsales/internal/apperr"
	kafkax "github.com/percystore/smartsales/internal/kafka"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/percystore/smartsales/internal/payments"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettler struct {
	calls []payments.Reading
	err   error
}

func (f *fakeSettler) Settle(_ context.Context, r payments.Reading) (orders.SettleResult, error) {
	f.calls = append(f.calls, r)
	if f.err != nil {
		return orders.SettleResult{}, f.err
	}
	return orders.SettleResult{Outcome: orders.SettlePaid, OrderID: 1}, nil
}

type sent struct {
	key, value []byte
	headers    []kafkago.Header
}

type fakePublisher struct{ msgs []sent }

func (p *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.msgs = append(p.msgs, sent{key, value, headers})
}

func newService(t *testing.T) (*Service, *fakeSettler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := &fakeSettler{}
	return &Service{Settler: st, Redis: rdb, ServiceName: "smartsales-api"}, st, mr
}

func reading() payments.Reading {
	return payments.Reading{
		Provider: "stripe", EventID: "evt_1", ExternalID: "pi_1",
		ExternalReference: "TRX-20260131-7-1769855400-abc123", Success: true,
		Amount: decimal.RequireFromString("150.00"), Currency: "bob",
	}
}

func TestApplyDeduplicatesDeliveries(t *testing.T) {
	s, st, mr := newService(t)
	ctx := context.Background()

	res, err := s.Apply(ctx, reading())
	require.NoError(t, err)
	assert.Equal(t, orders.SettlePaid, res.Outcome)

	res, err = s.Apply(ctx, reading())
	require.NoError(t, err)
	assert.Equal(t, SettleOutcomeDuplicate, res.Outcome)
	assert.Len(t, st.calls, 1)
	assert.True(t, mr.Exists("dedup:settlement:stripe:evt_1"))

	// a different event for the same payment is a new delivery
	r := reading()
	r.EventID = "evt_2"
	_, err = s.Apply(ctx, r)
	require.NoError(t, err)
	assert.Len(t, st.calls, 2)
}

func TestApplyReleasesClaimOnFailure(t *testing.T) {
	s, st, mr := newService(t)
	ctx := context.Background()
	st.err = errors.New("db down")

	_, err := s.Apply(ctx, reading())
	require.Error(t, err)
	assert.False(t, mr.Exists("dedup:settlement:stripe:evt_1"))

	st.err = nil
	res, err := s.Apply(ctx, reading())
	require.NoError(t, err)
	assert.Equal(t, orders.SettlePaid, res.Outcome)
	assert.Len(t, st.calls, 2)
}

func TestApplySettlesWhenRedisIsDown(t *testing.T) {
	s, st, mr := newService(t)
	mr.Close()

	res, err := s.Apply(context.Background(), reading())
	require.NoError(t, err)
	assert.Equal(t, orders.SettlePaid, res.Outcome)
	assert.Len(t, st.calls, 1)
}

func TestEnqueueThenHandle(t *testing.T) {
	s, st, _ := newService(t)
	pub := &fakePublisher{}
	s.Callbacks = pub
	s.Now = func() time.Time { return time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC) }
	require.True(t, s.Async())

	s.Enqueue(reading())
	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "TRX-20260131-7-1769855400-abc123", string(msg.key))

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(msg.value, &env))
	assert.Equal(t, orders.EventPaymentCallback, env.EventType)
	assert.Equal(t, "smartsales-api", env.Producer)

	km := kafkago.Message{Value: msg.value, Headers: msg.headers}
	assert.Equal(t, orders.EventPaymentCallback, kafkax.Header(km, kafkax.HeaderEventType))
	require.NoError(t, s.HandleCallback(context.Background(), km))

	require.Len(t, st.calls, 1)
	got := st.calls[0]
	assert.Equal(t, "pi_1", got.ExternalID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("150")))
	assert.True(t, got.Success)

	// redelivery of the same message is absorbed by the dedup claim
	require.NoError(t, s.HandleCallback(context.Background(), km))
	assert.Len(t, st.calls, 1)
}

func TestHandleCallbackSkipsBadMessages(t *testing.T) {
	s, st, _ := newService(t)
	ctx := context.Background()

	assert.NoError(t, s.HandleCallback(ctx, kafkago.Message{Value: []byte("{not json")}))

	other := kafkax.MustMarshal(orders.Envelope{EventType: orders.EventOrderPaid, Payload: []byte(`{}`)})
	assert.NoError(t, s.HandleCallback(ctx, kafkago.Message{Value: other}))
	assert.Empty(t, st.calls)

	st.err = apperr.Validation("reading needs external_id and external_reference")
	bad := kafkax.MustMarshal(orders.Envelope{
		EventType: orders.EventPaymentCallback,
		Payload:   kafkax.MustMarshal(payments.Reading{Provider: "qr", EventID: "n-9"}),
	})
	assert.NoError(t, s.HandleCallback(ctx, kafkago.Message{Value: bad}))

	st.err = errors.New("db down")
	assert.Error(t, s.HandleCallback(ctx, kafkago.Message{Value: bad}))
}
