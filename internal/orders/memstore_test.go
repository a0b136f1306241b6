package orders

import (
	"context"
	"sync"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/audit"
	"github.com/shopspring/decimal"
)

type memProduct struct {
	name           string
	stock          int
	active         bool
	warrantyMonths int
}

type memCartItem struct {
	productID int64
	qty       int
	price     decimal.Decimal
}

type memCart struct {
	id     int64
	userID int64
	status string
	items  []memCartItem
}

type memState struct {
	products  map[int64]memProduct
	carts     map[int64]*memCart
	addresses map[int64]int64 // address -> owner
	orders    map[int64]Order
	items     map[int64][]Item
	payments  map[string]Payment // provider|external_id
	audit     []audit.Entry
	nextID    int64
}

func (s *memState) clone() *memState {
	c := &memState{
		products:  map[int64]memProduct{},
		carts:     map[int64]*memCart{},
		addresses: map[int64]int64{},
		orders:    map[int64]Order{},
		items:     map[int64][]Item{},
		payments:  map[string]Payment{},
		audit:     append([]audit.Entry(nil), s.audit...),
		nextID:    s.nextID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		cp := *v
		cp.items = append([]memCartItem(nil), v.items...)
		c.carts[k] = &cp
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]Item(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// memStore applies a transaction to a copy of the state and swaps it in on success.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

func newMemStore() *memStore {
	return &memStore{state: (&memState{}).clone()}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) id() int64 {
	m.state.nextID++
	return m.state.nextID
}

func (m *memStore) addProduct(name string, stock int) int64 {
	id := m.id()
	m.state.products[id] = memProduct{name: name, stock: stock, active: true}
	return id
}

func (m *memStore) addToCart(userID, productID int64, qty int, price string) {
	var c *memCart
	for _, x := range m.state.carts {
		if x.userID == userID && x.status == "ACTIVE" {
			c = x
		}
	}
	if c == nil {
		c = &memCart{id: m.id(), userID: userID, status: "ACTIVE"}
		m.state.carts[c.id] = c
	}
	c.items = append(c.items, memCartItem{productID: productID, qty: qty, price: decimal.RequireFromString(price)})
}

func (m *memStore) stock(id int64) int { return m.state.products[id].stock }

func (m *memStore) order(id int64) Order { return m.state.orders[id] }

func (m *memStore) cartStatus(userID int64) (string, int) {
	for _, c := range m.state.carts {
		if c.userID == userID && c.status == "ACTIVE" {
			return c.status, len(c.items)
		}
	}
	return "", 0
}

type memTx struct{ s *memState }

func (t *memTx) LockActiveCart(_ context.Context, userID int64) (int64, error) {
	for _, c := range t.s.carts {
		if c.userID == userID && c.status == "ACTIVE" {
			return c.id, nil
		}
	}
	return 0, apperr.NotFound("no active cart")
}

func (t *memTx) CartLines(_ context.Context, cartID int64) ([]CartLine, error) {
	var out []CartLine
	for _, it := range t.s.carts[cartID].items {
		p := t.s.products[it.productID]
		out = append(out, CartLine{
			ProductID: it.productID, Qty: it.qty, PriceSnapshot: it.price, Name: p.name,
			WarrantyMonths: p.warrantyMonths, Stock: p.stock, Active: p.active,
		})
	}
	return out, nil
}

func (t *memTx) MarkCartConverted(_ context.Context, cartID int64) error {
	t.s.carts[cartID].status = "CONVERTED"
	return nil
}

func (t *memTx) AddressOwnedBy(_ context.Context, addressID, userID int64) (bool, error) {
	owner, ok := t.s.addresses[addressID]
	return ok && owner == userID, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	t.s.nextID++
	o.ID = t.s.nextID
	cp := *o
	cp.Items = nil
	t.s.orders[o.ID] = cp
	return nil
}

func (t *memTx) InsertItems(_ context.Context, orderID int64, items []Item) error {
	for i := range items {
		t.s.nextID++
		items[i].ID = t.s.nextID
		items[i].OrderID = orderID
	}
	t.s.items[orderID] = append([]Item(nil), items...)
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return Order{}, apperr.NotFound("order %d not found", id)
	}
	return o, nil
}

func (t *memTx) LockOrderByTransaction(_ context.Context, trx string) (Order, error) {
	for _, o := range t.s.orders {
		if o.TransactionNumber == trx {
			return o, nil
		}
	}
	return Order{}, apperr.NotFound("order %s not found", trx)
}

func (t *memTx) Items(_ context.Context, orderID int64) ([]Item, error) {
	return append([]Item(nil), t.s.items[orderID]...), nil
}

func (t *memTx) UpdateOrder(_ context.Context, o Order) error {
	o.Items = nil
	t.s.orders[o.ID] = o
	return nil
}

func (t *memTx) LockStock(_ context.Context, ids []int64) (map[int64]int, error) {
	out := map[int64]int{}
	for _, id := range ids {
		p, ok := t.s.products[id]
		if !ok {
			return nil, apperr.NotFound("product %d not found", id)
		}
		out[id] = p.stock
	}
	return out, nil
}

func (t *memTx) SetStock(_ context.Context, id int64, stock int) error {
	p := t.s.products[id]
	p.stock = stock
	t.s.products[id] = p
	return nil
}

func (t *memTx) UpsertPayment(_ context.Context, p *Payment) error {
	key := p.Provider + "|" + p.ExternalID
	if prev, ok := t.s.payments[key]; ok {
		p.ID = prev.ID
		if prev.Status == PaymentSucceeded {
			p.Status = prev.Status
		}
	} else {
		t.s.nextID++
		p.ID = t.s.nextID
	}
	t.s.payments[key] = *p
	return nil
}

func (t *memTx) Audit(_ context.Context, e audit.Entry) error {
	t.s.audit = append(t.s.audit, e)
	return nil
}
