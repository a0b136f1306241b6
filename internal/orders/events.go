package orders

import (
	"encoding/json"
	"time"

	"github.com/percystore/smartsales/internal/payments"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderPaid          = "OrderPaid"
	EventOrderVoided        = "OrderVoided"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentCallback    = "PaymentCallback"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // transaction number
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID int64           `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID           int64           `json:"order_id"`
	TransactionNumber string          `json:"transaction_number"`
	UserID            int64           `json:"user_id"`
	Items             []ItemPrice     `json:"items"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
}

type OrderPaidPayload struct {
	OrderID           int64     `json:"order_id"`
	TransactionNumber string    `json:"transaction_number"`
	PaidAt            time.Time `json:"paid_at"`
	ApprovedBy        *int64    `json:"approved_by,omitempty"`
	Source            string    `json:"source"` // admin | <provider>
}

type OrderVoidedPayload struct {
	OrderID           int64  `json:"order_id"`
	TransactionNumber string `json:"transaction_number"`
	Reason            string `json:"reason"`
	StockRestored     bool   `json:"stock_restored"`
}

type OrderStatusChangedPayload struct {
	OrderID           int64  `json:"order_id"`
	TransactionNumber string `json:"transaction_number"`
	From              Status `json:"from"`
	To                Status `json:"to"`
}

// PaymentCallbackPayload carries a verified provider reading to the settlement worker.
type PaymentCallbackPayload = payments.Reading
