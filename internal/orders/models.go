package orders

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Status            Status          `json:"status"`
	TransactionNumber string          `json:"transaction_number"`
	TransactionStatus TxStatus        `json:"transaction_status"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountTotal     decimal.Decimal `json:"discount_total"`
	TaxTotal          decimal.Decimal `json:"tax_total"`
	ShippingTotal     decimal.Decimal `json:"shipping_total"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	ShippingAddressID *int64          `json:"shipping_address_id,omitempty"`
	BillingAddressID  *int64          `json:"billing_address_id,omitempty"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	CustomerName      string          `json:"customer_name,omitempty"`
	CustomerDocument  string          `json:"customer_document,omitempty"`
	CustomerPhone     string          `json:"customer_phone,omitempty"`
	Observation       string          `json:"observation,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	ApprovedBy        *int64          `json:"approved_by,omitempty"`
	VoidedAt          *time.Time      `json:"voided_at,omitempty"`
	VoidedBy          *int64          `json:"voided_by,omitempty"`
	Items             []Item          `json:"items,omitempty"`
}

// Item is frozen at checkout; catalog edits never reach it.
type Item struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"order_id"`
	ProductID         int64           `json:"product_id"`
	Name              string          `json:"name"`
	Color             string          `json:"color,omitempty"`
	Size              string          `json:"size,omitempty"`
	WarrantyMonths    int             `json:"warranty_months"`
	WarrantyExpiresAt *time.Time      `json:"warranty_expires_at,omitempty"`
	Qty               int             `json:"qty"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	LineTotal         decimal.Decimal `json:"line_total"`
}

type Payment struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"order_id"`
	Provider          string          `json:"provider"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            PaymentStatus   `json:"status"`
	ExternalID        string          `json:"external_id"`
	ExternalReference string          `json:"external_reference"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// CartLine is a cart item joined with the live product row.
type CartLine struct {
	ProductID      int64
	Qty            int
	PriceSnapshot  decimal.Decimal
	Name           string
	Color          string
	Size           string
	WarrantyMonths int
	Stock          int
	Active         bool
}

type CheckoutInput struct {
	UserID            int64  `json:"-"`
	ShippingAddressID *int64 `json:"shipping_address_id"`
	BillingAddressID  *int64 `json:"billing_address_id"`
	PaymentMethod     string `json:"payment_method" validate:"omitempty,oneof=QR CASH CARD"`
	CustomerName      string `json:"customer_name" validate:"max=120"`
	CustomerDocument  string `json:"customer_document" validate:"max=40"`
	CustomerPhone     string `json:"customer_phone" validate:"max=30"`
}

// Shortage is one line that cannot be served from current stock.
type Shortage struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// Snapshot is the audited view of an order.
type Snapshot struct {
	ID                int64           `json:"id"`
	TransactionNumber string          `json:"transaction_number"`
	Status            Status          `json:"status"`
	TransactionStatus TxStatus        `json:"transaction_status"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	ApprovedBy        *int64          `json:"approved_by,omitempty"`
	VoidedAt          *time.Time      `json:"voided_at,omitempty"`
	VoidedBy          *int64          `json:"voided_by,omitempty"`
}

func (s Snapshot) ModelName() string { return "Order" }
func (s Snapshot) ObjectID() string  { return strconv.FormatInt(s.ID, 10) }

func (o Order) Snapshot() Snapshot {
	return Snapshot{
		ID: o.ID, TransactionNumber: o.TransactionNumber, Status: o.Status,
		TransactionStatus: o.TransactionStatus, GrandTotal: o.GrandTotal, PaymentMethod: o.PaymentMethod,
		PaidAt: o.PaidAt, ApprovedBy: o.ApprovedBy, VoidedAt: o.VoidedAt, VoidedBy: o.VoidedBy,
	}
}
