package httpx

import (
	"net/http"
	"strconv"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/catalog"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/shopspring/decimal"
)

func (a *API) listBrands(w http.ResponseWriter, r *http.Request) {
	list, err := a.Catalog.ListBrands(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []catalog.Brand{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	list, err := a.Catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, list)
}

func queryDecimal(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperr.Validation("invalid %s", name)
	}
	return &d, nil
}

func productFilter(r *http.Request) (catalog.ListFilter, error) {
	q := r.URL.Query()
	f := catalog.ListFilter{
		Query:  q.Get("q"),
		Sort:   q.Get("sort"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	f.Featured, _ = strconv.ParseBool(q.Get("featured"))
	var err error
	if f.CategoryID, err = queryInt64(r, "category_id"); err != nil {
		return f, err
	}
	if f.BrandID, err = queryInt64(r, "brand_id"); err != nil {
		return f, err
	}
	if f.MinPrice, err = queryDecimal(r, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryDecimal(r, "max_price"); err != nil {
		return f, err
	}
	return f, nil
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
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

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.Catalog.GetProduct(r.Context(), id, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.Carts.Get(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type addToCartReq struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int   `json:"qty" validate:"required,gt=0"`
}

func (a *API) addToCart(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addToCartReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.Carts.Add(r.Context(), uid, req.ProductID, req.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type cartQtyReq struct {
	Qty int `json:"qty"`
}

// updateCartItem sets the line quantity; zero or less removes the line.
func (a *API) updateCartItem(w http.ResponseWriter, r *http.Request) {
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
	var req cartQtyReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.Carts.Update(r.Context(), uid, id, req.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) removeCartItem(w http.ResponseWriter, r *http.Request) {
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
	c, err := a.Carts.Remove(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in orders.CheckoutInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.UserID = uid
	o, err := a.Engine.Checkout(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}
