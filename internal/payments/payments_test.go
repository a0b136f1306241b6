package payments

import (
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
)

const stripeSecret = "whsec_test"

func signedStripe(t *testing.T, body string) http.Header {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set("Stripe-Signature", sp.Header)
	return h
}

func TestStripeSucceeded(t *testing.T) {
	body := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded",
		"data":{"object":{"id":"pi_1","object":"payment_intent","amount":12550,"currency":"bob",
		"metadata":{"external_reference":"TRX-20260110-7-1768000000-a1b2c3"}}}}`

	r, err := StripeWebhook{Secret: stripeSecret}.Read([]byte(body), signedStripe(t, body))
	require.NoError(t, err)

	assert.Equal(t, ProviderStripe, r.Provider)
	assert.Equal(t, "pi_1", r.ExternalID)
	assert.Equal(t, "TRX-20260110-7-1768000000-a1b2c3", r.ExternalReference)
	assert.True(t, r.Success)
	assert.Equal(t, "125.5", r.Amount.String())
	assert.Equal(t, "BOB", r.Currency)
	assert.Equal(t, "stripe:evt_1", r.DedupID())
}

func TestStripeFailedAndIgnored(t *testing.T) {
	failed := `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed",
		"data":{"object":{"id":"pi_2","object":"payment_intent","amount":100,"currency":"bob",
		"metadata":{"external_reference":"TRX-1"}}}}`
	r, err := StripeWebhook{Secret: stripeSecret}.Read([]byte(failed), signedStripe(t, failed))
	require.NoError(t, err)
	assert.False(t, r.Success)

	other := `{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{}}}`
	_, err = StripeWebhook{Secret: stripeSecret}.Read([]byte(other), signedStripe(t, other))
	assert.ErrorIs(t, err, ErrIgnored)
}

func TestStripeBadSignature(t *testing.T) {
	body := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{}}}`
	h := signedStripe(t, body)
	_, err := StripeWebhook{Secret: "whsec_other"}.Read([]byte(body), h)
	assert.Error(t, err)
}

func qrHeader(secret string, body []byte) http.Header {
	h := http.Header{}
	h.Set(QRSignatureHeader, hex.EncodeToString(SignQR(secret, body)))
	return h
}

func TestQRReading(t *testing.T) {
	body := []byte(`{"notification_id":"n-9","transaction_id":"bnb-77","reference":"TRX-2","status":"paid","amount":"99.90","currency":"bob"}`)
	r, err := QRWebhook{Secret: "s3"}.Read(body, qrHeader("s3", body))
	require.NoError(t, err)

	assert.Equal(t, ProviderQR, r.Provider)
	assert.Equal(t, "bnb-77", r.ExternalID)
	assert.Equal(t, "TRX-2", r.ExternalReference)
	assert.True(t, r.Success)
	assert.Equal(t, "99.9", r.Amount.String())
	assert.Equal(t, "qr:n-9", r.DedupID())
}

func TestQRRejectsTampering(t *testing.T) {
	body := []byte(`{"transaction_id":"bnb-77","reference":"TRX-2","status":"paid","amount":"99.90"}`)
	h := qrHeader("s3", body)
	tampered := []byte(`{"transaction_id":"bnb-77","reference":"TRX-3","status":"paid","amount":"99.90"}`)

	_, err := QRWebhook{Secret: "s3"}.Read(tampered, h)
	assert.Error(t, err)

	_, err = QRWebhook{}.Read(body, h)
	assert.Error(t, err, "unset secret never verifies")
}

func TestQRPendingIsIgnored(t *testing.T) {
	body := []byte(`{"transaction_id":"bnb-1","reference":"TRX-2","status":"pending"}`)
	_, err := QRWebhook{Secret: "s3"}.Read(body, qrHeader("s3", body))
	assert.ErrorIs(t, err, ErrIgnored)
}

func TestDedupIDWithoutEventID(t *testing.T) {
	r := Reading{Provider: "qr", ExternalID: "x", Success: false}
	assert.Equal(t, "qr:x:failed", r.DedupID())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(StripeWebhook{}, QRWebhook{})
	assert.Len(t, reg, 2)
	assert.Contains(t, reg, ProviderStripe)
	assert.Contains(t, reg, ProviderQR)
}
