// Package payments turns provider callbacks into a common Reading and
// starts provider-side payments.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
)

// ErrIgnored marks a well-formed callback that carries no settlement (other event types).
var ErrIgnored = errors.New("payments: event ignored")

// Reading is what every provider callback is reduced to.
type Reading struct {
	Provider          string          `json:"provider"`
	EventID           string          `json:"event_id"`
	ExternalID        string          `json:"external_id"`
	ExternalReference string          `json:"external_reference"`
	Success           bool            `json:"success"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// DedupID identifies one provider delivery.
func (r Reading) DedupID() string {
	if r.EventID != "" {
		return r.Provider + ":" + r.EventID
	}
	status := "failed"
	if r.Success {
		status = "succeeded"
	}
	return r.Provider + ":" + r.ExternalID + ":" + status
}

type Webhook interface {
	Provider() string
	// Read verifies and decodes a raw callback body.
	Read(payload []byte, header http.Header) (Reading, error)
}

type IntentRequest struct {
	OrderID   int64
	Reference string
	Amount    decimal.Decimal
	Currency  string
}

type Intent struct {
	Provider     string `json:"provider"`
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// Registry maps a provider name to its webhook reader.
type Registry map[string]Webhook

func NewRegistry(hooks ...Webhook) Registry {
	r := Registry{}
	for _, h := range hooks {
		r[h.Provider()] = h
	}
	return r
}
