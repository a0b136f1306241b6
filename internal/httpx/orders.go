package httpx

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/auth"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/percystore/smartsales/internal/report"
)

// canSee lets admins read any order and buyers only their own.
func canSee(r *http.Request, o orders.Order) error {
	c, err := auth.Caller(r.Context())
	if err != nil {
		return err
	}
	if c.HasRole(auth.RoleAdmin) || o.UserID == c.UserID() {
		return nil
	}
	// same answer as a missing order so ids cannot be probed
	return apperr.NotFound("order %d not found", o.ID)
}

func (a *API) visibleOrder(r *http.Request) (orders.Order, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return orders.Order{}, err
	}
	o, err := a.Orders.Get(r.Context(), id)
	if err != nil {
		return orders.Order{}, err
	}
	return o, canSee(r, o)
}

func (a *API) myOrders(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := a.Orders.List(r.Context(), orders.ListFilter{
		UserID: &uid,
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.visibleOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) orderByTransaction(w http.ResponseWriter, r *http.Request) {
	o, err := a.Orders.GetByTransaction(r.Context(), chi.URLParam(r, "trx"))
	if err == nil {
		err = canSee(r, o)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) receipt(w http.ResponseWriter, r *http.Request) {
	o, err := a.visibleOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	pdf := report.PDFRenderer{}
	if err := pdf.Render(&buf, report.Receipt(o, a.Currency)); err != nil {
		writeError(w, r, err)
		return
	}
	writeFile(w, "comprobante_"+o.TransactionNumber+".pdf", pdf.ContentType(), buf.Bytes())
}

func (a *API) startPayment(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	intent, err := a.Engine.StartPayment(r.Context(), id, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

type markPaidReq struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=QR CASH CARD"`
}

func (a *API) markPaid(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req markPaidReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	o, err := a.Engine.MarkPaid(r.Context(), id, &uid, req.PaymentMethod)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type voidReq struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func (a *API) voidOrder(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req voidReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := a.Engine.Void(r.Context(), id, req.Reason, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusReq struct {
	Status orders.Status `json:"status" validate:"required"`
}

func (a *API) setStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := a.Engine.Transition(r.Context(), id, req.Status, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) adminListOrders(w http.ResponseWriter, r *http.Request) {
	f := orders.ListFilter{
		Status:            orders.Status(r.URL.Query().Get("status")),
		TransactionStatus: orders.TxStatus(r.URL.Query().Get("transaction_status")),
		Limit:             queryInt(r, "limit", 50),
		Offset:            queryInt(r, "offset", 0),
	}
	var err error
	if f.UserID, err = queryInt64(r, "user_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, r, apperr.Validation("unknown status %q", f.Status))
		return
	}
	list, err := a.Orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) adminOrderPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := a.Orders.Payments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Payment{}
	}
	writeJSON(w, http.StatusOK, list)
}
