package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	ProviderStripe = "stripe"

	MetaReference = "external_reference"
	MetaOrderID   = "order_id"
)

type StripeWebhook struct {
	Secret string
}

func (StripeWebhook) Provider() string { return ProviderStripe }

func (w StripeWebhook) Read(payload []byte, header http.Header) (Reading, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), w.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Reading{}, fmt.Errorf("stripe signature: %w", err)
	}

	var success bool
	switch ev.Type {
	case "payment_intent.succeeded":
		success = true
	case "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		return Reading{}, ErrIgnored
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return Reading{}, fmt.Errorf("decode payment intent: %w", err)
	}
	ref := pi.Metadata[MetaReference]
	if ref == "" {
		return Reading{}, fmt.Errorf("payment intent %s: missing %s metadata", pi.ID, MetaReference)
	}
	return Reading{
		Provider:          ProviderStripe,
		EventID:           ev.ID,
		ExternalID:        pi.ID,
		ExternalReference: ref,
		Success:           success,
		Amount:            decimal.New(pi.Amount, -2),
		Currency:          strings.ToUpper(string(pi.Currency)),
		Raw:               ev.Data.Raw,
	}, nil
}

// StripeGateway creates PaymentIntents with a per-client key instead of the package-level stripe.Key.
type StripeGateway struct {
	client *paymentintent.Client
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{client: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	params.AddMetadata(MetaReference, req.Reference)
	params.AddMetadata(MetaOrderID, strconv.FormatInt(req.OrderID, 10))
	params.SetIdempotencyKey("order-" + req.Reference)

	pi, err := g.client.New(params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{Provider: ProviderStripe, ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}
