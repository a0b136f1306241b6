package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/percystore/smartsales/internal/payments"
)

const maxWebhookBody = 64 << 10

type webhookAck struct {
	Received bool                 `json:"received"`
	Queued   bool                 `json:"queued,omitempty"`
	Result   *orders.SettleResult `json:"result,omitempty"`
}

// webhook verifies a provider callback and settles it, inline or through
// payment.callbacks. Anything the provider should not retry gets a 2xx.
func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	hook, ok := a.Webhooks[provider]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown payment provider"})
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return
	}
	reading, err := hook.Read(payload, r.Header)
	if errors.Is(err, payments.ErrIgnored) {
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}
	if err != nil {
		slog.WarnContext(r.Context(), "rejected webhook", "provider", provider, "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid callback"})
		return
	}

	if a.Settle.Async() {
		a.Settle.Enqueue(reading)
		writeJSON(w, http.StatusAccepted, webhookAck{Received: true, Queued: true})
		return
	}
	res, err := a.Settle.Apply(r.Context(), reading)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookAck{Received: true, Result: &res})
}
