package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/audit"
	"github.com/percystore/smartsales/internal/catalog"
	"github.com/percystore/smartsales/internal/users"
)

func (a *API) adminListProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f.IncludeInactive = true
	list, err := a.Catalog.ListProducts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) adminGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.Catalog.GetProduct(r.Context(), id, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in catalog.ProductInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.Catalog.CreateProduct(r.Context(), uid, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) adminUpdateProduct(w http.ResponseWriter, r *http.Request) {
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
	var in catalog.ProductInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.Catalog.UpdateProduct(r.Context(), uid, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) adminDeleteProduct(w http.ResponseWriter, r *http.Request) {
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
	if err := a.Catalog.DeleteProduct(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adjustStockReq struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"max=255"`
}

func (a *API) adminAdjustStock(w http.ResponseWriter, r *http.Request) {
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
	var req adjustStockReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.Catalog.AdjustStock(r.Context(), uid, id, req.Delta, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) adminListUsers(w http.ResponseWriter, r *http.Request) {
	inactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	list, err := a.Profiles.List(r.Context(), users.ListFilter{
		Query:           r.URL.Query().Get("q"),
		IncludeInactive: inactive,
		Limit:           queryInt(r, "limit", 50),
		Offset:          queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []users.User{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) adminGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.Profiles.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) adminCreateUser(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in users.AdminUserInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.Accounts.Create(r.Context(), uid, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) adminUpdateUser(w http.ResponseWriter, r *http.Request) {
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
	var in users.AdminUserInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.Accounts.Update(r.Context(), uid, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
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
	if err := a.Profiles.Delete(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryDay(r *http.Request, name string, next bool) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.Validation("%s must be YYYY-MM-DD", name)
	}
	if next {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// auditLogs lists entries newest first; to is inclusive.
func (a *API) auditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Action:    audit.Action(q.Get("action")),
		ModelName: q.Get("model_name"),
		Limit:     queryInt(r, "limit", 100),
	}
	var err error
	if f.From, err = queryDay(r, "from", false); err != nil {
		writeError(w, r, err)
		return
	}
	if f.To, err = queryDay(r, "to", true); err != nil {
		writeError(w, r, err)
		return
	}
	if f.UserID, err = queryInt64(r, "user_id"); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := a.Audit.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, list)
}
