package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/audit"
	kafkax "github.com/percystore/smartsales/internal/kafka"
	"github.com/percystore/smartsales/internal/payments"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Engine drives checkout and every status change of an order.
type Engine struct {
	Store    Store
	Gateway  payments.Gateway
	Events   map[string]Publisher // by topic; topics without a publisher are skipped
	Producer string
	Currency string

	Now    func() time.Time
	Suffix func() string
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) suffix() string {
	if e.Suffix != nil {
		return e.Suffix()
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

func (e *Engine) currency() string {
	if e.Currency == "" {
		return "BOB"
	}
	return e.Currency
}

// TransactionNumber formats TRX-YYYYMMDD-<user>-<unix>-<suffix>.
func TransactionNumber(at time.Time, userID int64, suffix string) string {
	return fmt.Sprintf("TRX-%s-%d-%d-%s", at.Format("20060102"), userID, at.Unix(), suffix)
}

// AddMonths adds n calendar months, clamping the day to the end of the target month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// Checkout converts the user's ACTIVE cart into a PENDING order. Stock is checked
// here without a lock and only decremented at payment.
func (e *Engine) Checkout(ctx context.Context, in CheckoutInput) (Order, error) {
	if !paymentMethods[in.PaymentMethod] {
		return Order{}, apperr.Validation("unknown payment method %q", in.PaymentMethod)
	}
	var o Order
	err := e.Store.InTx(ctx, func(tx Tx) error {
		cartID, err := tx.LockActiveCart(ctx, in.UserID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("cart is empty")
		}
		if err != nil {
			return err
		}
		lines, err := tx.CartLines(ctx, cartID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.Validation("cart is empty")
		}
		for _, l := range lines {
			if !l.Active {
				return apperr.Validation("%s is no longer available", l.Name)
			}
			if l.Qty > l.Stock {
				return apperr.Validation("insufficient stock for %s: requested %d, available %d", l.Name, l.Qty, l.Stock)
			}
		}
		for _, id := range []*int64{in.ShippingAddressID, in.BillingAddressID} {
			if id == nil {
				continue
			}
			ok, err := tx.AddressOwnedBy(ctx, *id, in.UserID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound("address %d not found", *id)
			}
		}

		now := e.now()
		o = Order{
			UserID:            in.UserID,
			Status:            StatusPending,
			TransactionNumber: TransactionNumber(now, in.UserID, e.suffix()),
			TransactionStatus: TxValid,
			Subtotal:          decimal.Zero,
			DiscountTotal:     decimal.Zero,
			TaxTotal:          decimal.Zero,
			ShippingTotal:     decimal.Zero,
			ShippingAddressID: in.ShippingAddressID,
			BillingAddressID:  in.BillingAddressID,
			PaymentMethod:     in.PaymentMethod,
			CustomerName:      strings.TrimSpace(in.CustomerName),
			CustomerDocument:  strings.TrimSpace(in.CustomerDocument),
			CustomerPhone:     strings.TrimSpace(in.CustomerPhone),
			CreatedAt:         now,
		}
		o.Items = make([]Item, 0, len(lines))
		for _, l := range lines {
			it := Item{
				ProductID:      l.ProductID,
				Name:           l.Name,
				Color:          l.Color,
				Size:           l.Size,
				WarrantyMonths: l.WarrantyMonths,
				Qty:            l.Qty,
				UnitPrice:      l.PriceSnapshot,
				LineTotal:      l.PriceSnapshot.Mul(decimal.NewFromInt(int64(l.Qty))),
			}
			if l.WarrantyMonths > 0 {
				exp := AddMonths(now, l.WarrantyMonths)
				it.WarrantyExpiresAt = &exp
			}
			o.Subtotal = o.Subtotal.Add(it.LineTotal)
			o.Items = append(o.Items, it)
		}
		o.GrandTotal = o.Subtotal.Sub(o.DiscountTotal).Add(o.TaxTotal).Add(o.ShippingTotal)

		if err := tx.InsertOrder(ctx, &o); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, o.ID, o.Items); err != nil {
			return err
		}
		return tx.MarkCartConverted(ctx, cartID)
	})
	if err != nil {
		return Order{}, err
	}

	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{ProductID: it.ProductID, Qty: it.Qty, UnitPrice: it.UnitPrice})
	}
	e.emit(TopicOrderCreated, EventOrderCreated, o.TransactionNumber, OrderCreatedPayload{
		OrderID: o.ID, TransactionNumber: o.TransactionNumber, UserID: o.UserID, Items: items, GrandTotal: o.GrandTotal,
	})
	return o, nil
}

// checkPayable rejects orders that MarkPaid must not touch.
func checkPayable(o Order) error {
	switch {
	case o.TransactionStatus == TxVoid:
		return apperr.Conflict("order %s is void", o.TransactionNumber)
	case o.Status == StatusPaid:
		return apperr.Conflict("order %s is already paid", o.TransactionNumber)
	case o.Status != StatusPending:
		return apperr.Conflict("order %s is %s and cannot be paid", o.TransactionNumber, o.Status)
	}
	return nil
}

// demand sums quantities per product and returns the ids in lock order.
func demand(items []Item) (map[int64]int, []int64) {
	qty := map[int64]int{}
	for _, it := range items {
		qty[it.ProductID] += it.Qty
	}
	ids := make([]int64, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return qty, ids
}

// takeStock locks every product of items and decrements all of them, or none when
// any line is short.
func takeStock(ctx context.Context, tx Tx, items []Item) ([]Shortage, error) {
	qty, ids := demand(items)
	stock, err := tx.LockStock(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := map[int64]string{}
	for _, it := range items {
		names[it.ProductID] = it.Name
	}
	var short []Shortage
	for _, id := range ids {
		if stock[id] < qty[id] {
			short = append(short, Shortage{ProductID: id, Name: names[id], Required: qty[id], Available: stock[id]})
		}
	}
	if len(short) > 0 {
		return short, nil
	}
	for _, id := range ids {
		if err := tx.SetStock(ctx, id, stock[id]-qty[id]); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func returnStock(ctx context.Context, tx Tx, items []Item) error {
	qty, ids := demand(items)
	stock, err := tx.LockStock(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := tx.SetStock(ctx, id, stock[id]+qty[id]); err != nil {
			return err
		}
	}
	return nil
}

func shortageError(short []Shortage) error {
	parts := make([]string, 0, len(short))
	for _, s := range short {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("product %d", s.ProductID)
		}
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", name, s.Required, s.Available))
	}
	return apperr.Validation("insufficient stock: %s", strings.Join(parts, "; "))
}

// pay moves a locked PENDING order to PAID, taking stock. It returns the shortages
// without mutating anything when stock does not cover every line.
func (e *Engine) pay(ctx context.Context, tx Tx, o *Order, by *int64, method string) ([]Shortage, error) {
	items, err := tx.Items(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	short, err := takeStock(ctx, tx, items)
	if err != nil || len(short) > 0 {
		return short, err
	}
	before := o.Snapshot()
	o.Status = StatusPaid
	if o.PaidAt == nil {
		now := e.now()
		o.PaidAt = &now
	}
	if by != nil {
		o.ApprovedBy = by
	}
	if method != "" {
		o.PaymentMethod = method
	}
	if err := tx.UpdateOrder(ctx, *o); err != nil {
		return nil, err
	}
	o.Items = items
	return nil, e.record(ctx, tx, by, audit.ActionMarkPaid, before, o.Snapshot())
}

// MarkPaid is the admin confirmation of a payment.
func (e *Engine) MarkPaid(ctx context.Context, orderID int64, by *int64, method string) (Order, error) {
	if !paymentMethods[method] {
		return Order{}, apperr.Validation("unknown payment method %q", method)
	}
	var o Order
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		if err := checkPayable(o); err != nil {
			return err
		}
		short, err := e.pay(ctx, tx, &o, by, method)
		if err != nil {
			return err
		}
		if len(short) > 0 {
			return shortageError(short)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	e.emitPaid(o, "admin")
	return o, nil
}

// Void cancels an order financially. Stock taken at payment is returned.
func (e *Engine) Void(ctx context.Context, orderID int64, reason string, by int64) (Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Order{}, apperr.Validation("reason is required")
	}
	var (
		o        Order
		restored bool
	)
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		if o.TransactionStatus == TxVoid {
			return apperr.Conflict("order %s is already void", o.TransactionNumber)
		}
		before := o.Snapshot()
		if o.Status.HoldsStock() {
			items, err := tx.Items(ctx, o.ID)
			if err != nil {
				return err
			}
			if err := returnStock(ctx, tx, items); err != nil {
				return err
			}
			restored = true
		}
		now := e.now()
		o.TransactionStatus = TxVoid
		o.VoidedAt = &now
		o.VoidedBy = &by
		o.Status = StatusCancelled
		line := fmt.Sprintf("[%s] ANULADA: %s", now.Format("2006-01-02 15:04:05"), reason)
		if o.Observation == "" {
			o.Observation = line
		} else {
			o.Observation += "\n" + line
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		return e.record(ctx, tx, &by, audit.ActionVoid, before, o.Snapshot())
	})
	if err != nil {
		return Order{}, err
	}
	e.emit(TopicOrderVoided, EventOrderVoided, o.TransactionNumber, OrderVoidedPayload{
		OrderID: o.ID, TransactionNumber: o.TransactionNumber, Reason: reason, StockRestored: restored,
	})
	return o, nil
}

// Transition moves a VALID order along the fulfilment states. Cancelling a
// paid order goes through Void so its stock is returned.
func (e *Engine) Transition(ctx context.Context, orderID int64, to Status, by int64) (Order, error) {
	if !to.Valid() || to == StatusPaid {
		return Order{}, apperr.Validation("unsupported target status %q", to)
	}
	var (
		o    Order
		from Status
	)
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		if o.TransactionStatus == TxVoid {
			return apperr.Conflict("order %s is void", o.TransactionNumber)
		}
		from = o.Status
		if !CanTransition(from, to) {
			return apperr.Conflict("order %s cannot go from %s to %s", o.TransactionNumber, from, to)
		}
		if to == StatusCancelled && from.HoldsStock() {
			return apperr.Conflict("order %s is %s; void it to cancel", o.TransactionNumber, from)
		}
		before := o.Snapshot()
		o.Status = to
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		return e.record(ctx, tx, &by, audit.ActionStatusChange, before, o.Snapshot())
	})
	if err != nil {
		return Order{}, err
	}
	e.emit(TopicOrderStatusChanged, EventOrderStatusChanged, o.TransactionNumber, OrderStatusChangedPayload{
		OrderID: o.ID, TransactionNumber: o.TransactionNumber, From: from, To: to,
	})
	return o, nil
}

type SettleOutcome string

const (
	SettlePaid          SettleOutcome = "paid"
	SettleIgnored       SettleOutcome = "ignored"
	SettlePaymentFailed SettleOutcome = "payment_failed"
	SettleShortStock    SettleOutcome = "insufficient_stock"
)

type SettleResult struct {
	Outcome   SettleOutcome `json:"outcome"`
	OrderID   int64         `json:"order_id,omitempty"`
	Shortages []Shortage    `json:"shortages,omitempty"`
}

// Settle applies a provider reading. Callbacks for unknown, void or already
// settled orders are acknowledged without effect so provider retries are harmless.
func (e *Engine) Settle(ctx context.Context, r payments.Reading) (SettleResult, error) {
	if r.ExternalReference == "" || r.ExternalID == "" {
		return SettleResult{}, apperr.Validation("reading needs external_id and external_reference")
	}
	var (
		res SettleResult
		o   Order
	)
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		o, err = tx.LockOrderByTransaction(ctx, r.ExternalReference)
		if errors.Is(err, apperr.ErrNotFound) {
			res.Outcome = SettleIgnored
			return nil
		}
		if err != nil {
			return err
		}
		res.OrderID = o.ID

		p := Payment{
			OrderID:           o.ID,
			Provider:          r.Provider,
			Amount:            r.Amount,
			Currency:          r.Currency,
			Status:            PaymentFailed,
			ExternalID:        r.ExternalID,
			ExternalReference: r.ExternalReference,
			Metadata:          r.Raw,
		}
		if p.Amount.IsZero() {
			p.Amount = o.GrandTotal
		}
		if p.Currency == "" {
			p.Currency = e.currency()
		}
		if r.Success {
			p.Status = PaymentSucceeded
		}
		if err := tx.UpsertPayment(ctx, &p); err != nil {
			return err
		}

		switch {
		case !r.Success:
			res.Outcome = SettlePaymentFailed
			return nil
		case checkPayable(o) != nil:
			res.Outcome = SettleIgnored
			return nil
		}
		short, err := e.pay(ctx, tx, &o, nil, "")
		if err != nil {
			return err
		}
		if len(short) > 0 {
			res.Outcome = SettleShortStock
			res.Shortages = short
			return nil
		}
		res.Outcome = SettlePaid
		return nil
	})
	if err != nil {
		return SettleResult{}, err
	}
	switch res.Outcome {
	case SettlePaid:
		e.emitPaid(o, r.Provider)
	case SettleShortStock:
		slog.Warn("payment settled without stock", "trx", r.ExternalReference, "provider", r.Provider, "shortages", len(res.Shortages))
	}
	return res, nil
}

// StartPayment opens a provider payment for a PENDING order owned by userID.
// The provider call runs outside any transaction so a slow gateway never holds
// the order row lock.
func (e *Engine) StartPayment(ctx context.Context, orderID, userID int64) (payments.Intent, error) {
	if e.Gateway == nil {
		return payments.Intent{}, apperr.Validation("online payments are not configured")
	}
	var o Order
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		if o.UserID != userID {
			return apperr.Forbidden("order %d belongs to another user", orderID)
		}
		return checkPayable(o)
	})
	if err != nil {
		return payments.Intent{}, err
	}

	intent, err := e.Gateway.CreateIntent(ctx, payments.IntentRequest{
		OrderID: o.ID, Reference: o.TransactionNumber, Amount: o.GrandTotal, Currency: e.currency(),
	})
	if err != nil {
		return payments.Intent{}, apperr.External(err, "payment provider unavailable")
	}

	// a callback that already arrived keeps its SUCCEEDED status
	err = e.Store.InTx(ctx, func(tx Tx) error {
		return tx.UpsertPayment(ctx, &Payment{
			OrderID:           o.ID,
			Provider:          intent.Provider,
			Amount:            o.GrandTotal,
			Currency:          e.currency(),
			Status:            PaymentPending,
			ExternalID:        intent.ID,
			ExternalReference: o.TransactionNumber,
		})
	})
	if err != nil {
		return payments.Intent{}, err
	}
	return intent, nil
}

func (e *Engine) record(ctx context.Context, tx Tx, actor *int64, action audit.Action, before, after audit.Snapshot) error {
	entry, err := audit.NewEntry(actor, action, before, after)
	if err != nil {
		return err
	}
	return tx.Audit(ctx, entry)
}

func (e *Engine) emitPaid(o Order, source string) {
	var paidAt time.Time
	if o.PaidAt != nil {
		paidAt = *o.PaidAt
	}
	e.emit(TopicOrderPaid, EventOrderPaid, o.TransactionNumber, OrderPaidPayload{
		OrderID: o.ID, TransactionNumber: o.TransactionNumber, PaidAt: paidAt, ApprovedBy: o.ApprovedBy, Source: source,
	})
}

// emit publishes after commit; a missing publisher only skips the event.
func (e *Engine) emit(topic, eventType, trx string, payload any) {
	p, ok := e.Events[topic]
	if !ok || p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    e.now().UTC(),
		Producer:      e.Producer,
		CorrelationID: trx,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(trx), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, 1)...)
}
