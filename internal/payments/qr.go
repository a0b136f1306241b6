package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ProviderQR = "qr"

	QRSignatureHeader = "X-Signature"
)

// QRWebhook reads the bank QR notifier format, signed with HMAC-SHA256 over the raw body.
type QRWebhook struct {
	Secret string
}

type qrNotice struct {
	NotificationID string          `json:"notification_id"`
	TransactionID  string          `json:"transaction_id"`
	Reference      string          `json:"reference"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

func (QRWebhook) Provider() string { return ProviderQR }

func (w QRWebhook) Read(payload []byte, header http.Header) (Reading, error) {
	if !w.valid(payload, header.Get(QRSignatureHeader)) {
		return Reading{}, errors.New("qr signature mismatch")
	}
	var n qrNotice
	if err := json.Unmarshal(payload, &n); err != nil {
		return Reading{}, fmt.Errorf("decode qr notice: %w", err)
	}
	if n.TransactionID == "" || n.Reference == "" {
		return Reading{}, errors.New("qr notice: transaction_id and reference are required")
	}

	var success bool
	switch strings.ToUpper(n.Status) {
	case "PAID", "COMPLETED", "SUCCESS":
		success = true
	case "FAILED", "REJECTED", "EXPIRED":
	default:
		return Reading{}, ErrIgnored
	}
	return Reading{
		Provider:          ProviderQR,
		EventID:           n.NotificationID,
		ExternalID:        n.TransactionID,
		ExternalReference: n.Reference,
		Success:           success,
		Amount:            n.Amount,
		Currency:          strings.ToUpper(n.Currency),
		Raw:               payload,
	}, nil
}

func (w QRWebhook) valid(payload []byte, sig string) bool {
	if w.Secret == "" {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, SignQR(w.Secret, payload))
}

// SignQR computes the signature a notifier sends for payload.
func SignQR(secret string, payload []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(payload)
	return m.Sum(nil)
}
