package kafka

import (
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHeaders(t *testing.T) {
	m := kafka.Message{Headers: EventHeaders("OrderPaid", 1)}
	assert.Equal(t, "OrderPaid", Header(m, HeaderEventType))
	assert.Equal(t, "1", Header(m, HeaderEventVersion))
	assert.Equal(t, "", Header(m, "missing"))
}

func TestUnwrapPayload(t *testing.T) {
	type paid struct {
		OrderID int64 `json:"order_id"`
	}
	got, err := UnwrapPayload[paid](json.RawMessage(`{"order_id":12}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.OrderID)

	_, err = UnwrapPayload[paid](json.RawMessage(`[`))
	assert.Error(t, err)
}

func TestMustMarshalPanicsOnUnsupported(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(make(chan int)) })
	assert.Equal(t, `{"a":1}`, string(MustMarshal(map[string]int{"a": 1})))
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "t", 1)
	p.Close()
	p.Close()
	assert.NotPanics(t, func() { p.Publish([]byte("k"), []byte("v")) })
}
