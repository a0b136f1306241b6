package httpx

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/auth"
	"github.com/percystore/smartsales/internal/cart"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/percystore/smartsales/internal/payments"
	"github.com/percystore/smartsales/internal/report"
	"github.com/percystore/smartsales/internal/settlement"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyerID = int64(7)
	adminID = int64(1)
	qrKey   = "qr-secret"
)

type fakeCarts struct{ c cart.Cart }

func (f *fakeCarts) Get(_ context.Context, userID int64) (cart.Cart, error) {
	f.c.UserID = userID
	return f.c, nil
}

func (f *fakeCarts) Add(_ context.Context, userID, productID int64, qty int) (cart.Cart, error) {
	if qty > 5 {
		return cart.Cart{}, apperr.Validation("only 5 left")
	}
	f.c.UserID = userID
	f.c.Items = append(f.c.Items, cart.Item{ID: int64(len(f.c.Items) + 1), ProductID: productID, Qty: qty, PriceSnapshot: decimal.NewFromInt(10)})
	f.c.Total()
	return f.c, nil
}

func (f *fakeCarts) Update(_ context.Context, _, itemID int64, qty int) (cart.Cart, error) {
	for i, it := range f.c.Items {
		if it.ID == itemID {
			f.c.Items[i].Qty = qty
			f.c.Total()
			return f.c, nil
		}
	}
	return cart.Cart{}, apperr.NotFound("item %d not found", itemID)
}

func (f *fakeCarts) Remove(ctx context.Context, userID, itemID int64) (cart.Cart, error) {
	return f.Update(ctx, userID, itemID, 0)
}

type fakeOrders struct{ byID map[int64]orders.Order }

func (f *fakeOrders) Get(_ context.Context, id int64) (orders.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("order %d not found", id)
	}
	return o, nil
}

func (f *fakeOrders) GetByTransaction(_ context.Context, trx string) (orders.Order, error) {
	for _, o := range f.byID {
		if o.TransactionNumber == trx {
			return o, nil
		}
	}
	return orders.Order{}, apperr.NotFound("order %s not found", trx)
}

func (f *fakeOrders) List(_ context.Context, lf orders.ListFilter) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range f.byID {
		if lf.UserID == nil || *lf.UserID == o.UserID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) Payments(context.Context, int64) ([]orders.Payment, error) { return nil, nil }

type fakeEngine struct {
	paidBy *int64
	method string
}

func (f *fakeEngine) Checkout(_ context.Context, in orders.CheckoutInput) (orders.Order, error) {
	return orders.Order{ID: 99, UserID: in.UserID, Status: orders.StatusPending, PaymentMethod: in.PaymentMethod}, nil
}

func (f *fakeEngine) MarkPaid(_ context.Context, id int64, by *int64, method string) (orders.Order, error) {
	f.paidBy, f.method = by, method
	return orders.Order{ID: id, Status: orders.StatusPaid}, nil
}

func (f *fakeEngine) Void(_ context.Context, id int64, _ string, _ int64) (orders.Order, error) {
	return orders.Order{ID: id, TransactionStatus: orders.TxVoid}, nil
}

func (f *fakeEngine) Transition(_ context.Context, id int64, to orders.Status, _ int64) (orders.Order, error) {
	if !to.Valid() {
		return orders.Order{}, apperr.Validation("unknown status %q", to)
	}
	return orders.Order{ID: id, Status: to}, nil
}

func (f *fakeEngine) StartPayment(context.Context, int64, int64) (payments.Intent, error) {
	return payments.Intent{}, apperr.External(errors.New("dial tcp: timeout"), "payment provider unavailable")
}

type fakeSettler struct{ calls int }

func (f *fakeSettler) Settle(_ context.Context, r payments.Reading) (orders.SettleResult, error) {
	f.calls++
	return orders.SettleResult{Outcome: orders.SettlePaid, OrderID: 3}, nil
}

type fakePublisher struct{ n int }

func (p *fakePublisher) Publish([]byte, []byte, ...kafkago.Header) { p.n++ }

type fakeSource struct{ rows []report.Row }

func (f fakeSource) Sales(context.Context, report.Query) ([]report.Row, error) { return f.rows, nil }

type fakeArchive struct{ recs []report.Record }

func (f *fakeArchive) Save(_ context.Context, r *report.Record) error {
	r.ID = int64(len(f.recs) + 1)
	f.recs = append(f.recs, *r)
	return nil
}

func (f *fakeArchive) List(_ context.Context, kind report.Kind, _ int) ([]report.Record, error) {
	var out []report.Record
	for _, r := range f.recs {
		if r.Kind == kind {
			r.Content = nil
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeArchive) Get(_ context.Context, kind report.Kind, id int64) (report.Record, error) {
	for _, r := range f.recs {
		if r.ID == id && r.Kind == kind {
			return r, nil
		}
	}
	return report.Record{}, apperr.NotFound("report %d not found", id)
}

type harness struct {
	t       *testing.T
	h       http.Handler
	keys    *auth.Keys
	engine  *fakeEngine
	settler *fakeSettler
	archive *fakeArchive
	settle  *settlement.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)
	st := &fakeSettler{}
	ar := &fakeArchive{}
	reports := report.NewService(fakeSource{rows: []report.Row{
		{Key: "Ana Rojas", Quantity: 3, Total: decimal.RequireFromString("450")},
	}}, nil, ar)
	reports.Now = func() time.Time { return now }
	reports.Parser.Now = reports.Now

	hs := &harness{
		t:       t,
		keys:    auth.NewKeys("test-secret", time.Hour),
		engine:  &fakeEngine{},
		settler: st,
		archive: ar,
		settle:  &settlement.Service{Settler: st, Redis: rdb, ServiceName: "smartsales-api"},
	}
	api := &API{
		Keys:   hs.keys,
		Carts:  &fakeCarts{c: cart.Cart{ID: 1, Status: cart.StatusActive, Currency: "BOB"}},
		Engine: hs.engine,
		Orders: &fakeOrders{byID: map[int64]orders.Order{
			10: {ID: 10, UserID: buyerID, TransactionNumber: "TRX-A", Status: orders.StatusPending, GrandTotal: decimal.NewFromInt(20)},
			11: {ID: 11, UserID: 8, TransactionNumber: "TRX-B", Status: orders.StatusPaid},
		}},
		Reports:  reports,
		Archive:  ar,
		Settle:   hs.settle,
		Webhooks: payments.NewRegistry(payments.QRWebhook{Secret: qrKey}),
		Currency: "BOB",
	}
	r := NewRouter()
	api.Register(r)
	hs.h = r
	return hs
}

func (hs *harness) token(userID int64, admin bool) string {
	tok, _, err := hs.keys.Issue(userID, admin)
	require.NoError(hs.t, err)
	return tok
}

func (hs *harness) do(method, path, tok string, body any, hdr ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	case string:
		buf.WriteString(b)
	default:
		require.NoError(hs.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

func errBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func TestHealthz(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{apperr.Validation("bad"), http.StatusBadRequest, ""},
		{apperr.NotFound("gone"), http.StatusNotFound, ""},
		{apperr.Unauthorized("who"), http.StatusUnauthorized, ""},
		{apperr.Forbidden("no"), http.StatusForbidden, ""},
		{apperr.Conflict("taken"), http.StatusBadRequest, "conflict"},
		{apperr.External(errors.New("smtp"), "down"), http.StatusBadGateway, ""},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), c.err)
		assert.Equal(t, c.code, rec.Code, c.err.Error())
		b := errBody(t, rec)
		assert.Equal(t, c.kind, b.Code)
		if c.code == http.StatusInternalServerError {
			assert.Equal(t, "internal error", b.Error)
		}
	}
}

func TestAuthAndAdminGuards(t *testing.T) {
	hs := newHarness(t)

	rec := hs.do(http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = hs.do(http.MethodGet, "/cart", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = hs.do(http.MethodPost, "/orders/10/mark-paid", hs.token(buyerID, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = hs.do(http.MethodGet, "/admin/reports/sales", hs.token(buyerID, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCartEndpoints(t *testing.T) {
	hs := newHarness(t)
	tok := hs.token(buyerID, false)

	rec := hs.do(http.MethodPost, "/cart/add", tok, map[string]any{"product_id": 5, "qty": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var c cart.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, buyerID, c.UserID)
	assert.True(t, c.Subtotal.Equal(decimal.NewFromInt(20)))

	rec = hs.do(http.MethodPost, "/cart/add", tok, map[string]any{"product_id": 5, "qty": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "only 5 left", errBody(t, rec).Error)

	rec = hs.do(http.MethodPost, "/cart/add", tok, map[string]any{"qty": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errBody(t, rec).Error, "productid is required")

	rec = hs.do(http.MethodPut, "/cart/items/1", tok, map[string]any{"qty": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.True(t, c.Subtotal.Equal(decimal.NewFromInt(30)))

	rec = hs.do(http.MethodPut, "/cart/items/abc", tok, map[string]any{"qty": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(http.MethodDelete, "/cart/items/42", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = hs.do(http.MethodPost, "/cart/add", tok, "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutUsesCaller(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(http.MethodPost, "/checkout", hs.token(buyerID, false),
		map[string]any{"payment_method": "QR", "user_id": 99})
	require.Equal(t, http.StatusCreated, rec.Code)
	var o orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, buyerID, o.UserID)

	rec = hs.do(http.MethodPost, "/checkout", hs.token(buyerID, false), map[string]any{"payment_method": "BITCOIN"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderVisibility(t *testing.T) {
	hs := newHarness(t)
	buyer := hs.token(buyerID, false)

	assert.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/orders/10", buyer, nil).Code)
	assert.Equal(t, http.StatusNotFound, hs.do(http.MethodGet, "/orders/11", buyer, nil).Code)
	assert.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/orders/11", hs.token(adminID, true), nil).Code)
	assert.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/orders/by-transaction/TRX-A", buyer, nil).Code)
	assert.Equal(t, http.StatusNotFound, hs.do(http.MethodGet, "/orders/by-transaction/TRX-B", buyer, nil).Code)

	rec := hs.do(http.MethodGet, "/orders/mine", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, int64(10), mine[0].ID)

	rec = hs.do(http.MethodGet, "/orders/10/receipt.pdf", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "comprobante_TRX-A.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = hs.do(http.MethodPost, "/orders/10/pay", buyer, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAdminOrderActions(t *testing.T) {
	hs := newHarness(t)
	admin := hs.token(adminID, true)

	rec := hs.do(http.MethodPost, "/orders/10/mark-paid", admin, map[string]string{"payment_method": "CASH"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, hs.engine.paidBy)
	assert.Equal(t, adminID, *hs.engine.paidBy)
	assert.Equal(t, "CASH", hs.engine.method)

	rec = hs.do(http.MethodPost, "/orders/10/mark-paid", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", hs.engine.method)

	rec = hs.do(http.MethodPost, "/orders/10/void", admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = hs.do(http.MethodPost, "/orders/10/void", admin, map[string]string{"reason": "duplicado"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = hs.do(http.MethodPost, "/orders/11/status", admin, map[string]string{"status": "SHIPPED"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = hs.do(http.MethodPost, "/orders/11/status", admin, map[string]string{"status": "LOST"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func qrPayload(id, status string) []byte {
	return []byte(`{"notification_id":"` + id + `","transaction_id":"qr-55","reference":"TRX-A","status":"` +
		status + `","amount":"20.00","currency":"bob"}`)
}

func TestWebhookSettlesOnce(t *testing.T) {
	hs := newHarness(t)
	body := qrPayload("n-1", "PAID")
	sig := hex.EncodeToString(payments.SignQR(qrKey, body))

	rec := hs.do(http.MethodPost, "/webhooks/qr", "", body, payments.QRSignatureHeader, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	var ack webhookAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	require.NotNil(t, ack.Result)
	assert.Equal(t, orders.SettlePaid, ack.Result.Outcome)

	rec = hs.do(http.MethodPost, "/webhooks/qr", "", body, payments.QRSignatureHeader, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, settlement.SettleOutcomeDuplicate, ack.Result.Outcome)
	assert.Equal(t, 1, hs.settler.calls)
}

func TestWebhookRejectsAndIgnores(t *testing.T) {
	hs := newHarness(t)
	body := qrPayload("n-2", "PAID")

	rec := hs.do(http.MethodPost, "/webhooks/qr", "", body, payments.QRSignatureHeader, "00ff")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(http.MethodPost, "/webhooks/paypal", "", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pending := qrPayload("n-3", "PENDING")
	rec = hs.do(http.MethodPost, "/webhooks/qr", "", pending,
		payments.QRSignatureHeader, hex.EncodeToString(payments.SignQR(qrKey, pending)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, hs.settler.calls)
}

func TestWebhookQueuesWhenAsync(t *testing.T) {
	hs := newHarness(t)
	pub := &fakePublisher{}
	hs.settle.Callbacks = pub
	body := qrPayload("n-4", "PAID")

	rec := hs.do(http.MethodPost, "/webhooks/qr", "", body,
		payments.QRSignatureHeader, hex.EncodeToString(payments.SignQR(qrKey, body)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, pub.n)
	assert.Zero(t, hs.settler.calls)
}

func TestPromptReportArchiveAndDownload(t *testing.T) {
	hs := newHarness(t)
	admin := hs.token(adminID, true)

	rec := hs.do(http.MethodPost, "/admin/reports/prompt", admin, map[string]string{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(http.MethodPost, "/admin/reports/prompt", admin,
		map[string]string{"prompt": "ventas por cliente de septiembre en pdf"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Spec   report.Spec   `json:"spec"`
		Report report.Record `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, report.GroupCustomer, out.Spec.GroupBy)
	assert.Equal(t, report.FormatPDF, out.Report.Format)
	require.Len(t, hs.archive.recs, 1)

	rec = hs.do(http.MethodGet, "/admin/reports/sales", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), out.Report.FileName)

	rec = hs.do(http.MethodGet, "/admin/reports/sales/1/download", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	// the audit archive never serves sales files
	rec = hs.do(http.MethodGet, "/admin/reports/audit/1/download", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportSalesCSV(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(http.MethodPost, "/admin/reports/sales/export-csv", hs.token(adminID, true),
		map[string]string{"group_by": "customer", "from": "2026-09-01", "to": "2026-09-30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ventas_20261015_103000.csv")
	assert.Contains(t, rec.Body.String(), "Ana Rojas,3,450.00")
}
