package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/percystore/smartsales/internal/audit"
	"github.com/percystore/smartsales/internal/auth"
	"github.com/percystore/smartsales/internal/cart"
	"github.com/percystore/smartsales/internal/catalog"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/percystore/smartsales/internal/payments"
	"github.com/percystore/smartsales/internal/report"
	"github.com/percystore/smartsales/internal/users"
	"github.com/percystore/smartsales/internal/verify"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// The interfaces below list what the handlers call; the concrete
// repositories and services in internal/ satisfy them.

type Accounts interface {
	Register(ctx context.Context, in users.RegisterInput) (users.User, error)
	Login(ctx context.Context, in users.LoginInput) (users.Token, error)
	Create(ctx context.Context, actor int64, in users.AdminUserInput) (users.User, error)
	Update(ctx context.Context, actor, id int64, in users.AdminUserInput) (users.User, error)
	ChangeEmail(ctx context.Context, userID int64, email, code string) (users.User, error)
	ChangePhone(ctx context.Context, userID int64, phone, code string) (users.User, error)
}

type Profiles interface {
	Get(ctx context.Context, id int64) (users.User, error)
	List(ctx context.Context, f users.ListFilter) ([]users.User, error)
	UpdateProfile(ctx context.Context, id int64, in users.ProfileInput) (users.User, error)
	Delete(ctx context.Context, actor, id int64) error
	Addresses(ctx context.Context, userID int64) ([]users.Address, error)
	Address(ctx context.Context, userID, id int64) (users.Address, error)
	CreateAddress(ctx context.Context, userID int64, in users.AddressInput) (users.Address, error)
	UpdateAddress(ctx context.Context, userID, id int64, in users.AddressInput) (users.Address, error)
	DeleteAddress(ctx context.Context, userID, id int64) error
}

type Codes interface {
	Issue(ctx context.Context, ch verify.Channel, dest string) (verify.Issued, error)
	Check(ctx context.Context, ch verify.Channel, dest, code string) error
}

type Catalog interface {
	ListProducts(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id int64, includeInactive bool) (catalog.Product, error)
	ListBrands(ctx context.Context) ([]catalog.Brand, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	CreateProduct(ctx context.Context, actor int64, in catalog.ProductInput) (catalog.Product, error)
	UpdateProduct(ctx context.Context, actor, id int64, in catalog.ProductInput) (catalog.Product, error)
	DeleteProduct(ctx context.Context, actor, id int64) error
	AdjustStock(ctx context.Context, actor, id int64, delta int, reason string) (catalog.Product, error)
}

type Carts interface {
	Get(ctx context.Context, userID int64) (cart.Cart, error)
	Add(ctx context.Context, userID, productID int64, qty int) (cart.Cart, error)
	Update(ctx context.Context, userID, itemID int64, qty int) (cart.Cart, error)
	Remove(ctx context.Context, userID, itemID int64) (cart.Cart, error)
}

type OrderEngine interface {
	Checkout(ctx context.Context, in orders.CheckoutInput) (orders.Order, error)
	MarkPaid(ctx context.Context, orderID int64, by *int64, method string) (orders.Order, error)
	Void(ctx context.Context, orderID int64, reason string, by int64) (orders.Order, error)
	Transition(ctx context.Context, orderID int64, to orders.Status, by int64) (orders.Order, error)
	StartPayment(ctx context.Context, orderID, userID int64) (payments.Intent, error)
}

type OrderReader interface {
	Get(ctx context.Context, id int64) (orders.Order, error)
	GetByTransaction(ctx context.Context, trx string) (orders.Order, error)
	List(ctx context.Context, f orders.ListFilter) ([]orders.Order, error)
	Payments(ctx context.Context, orderID int64) ([]orders.Payment, error)
}

type Reports interface {
	FromPrompt(ctx context.Context, actor int64, prompt string) (report.Output, error)
	Sales(ctx context.Context, actor int64, req report.SalesRequest) (report.Output, error)
	AuditReport(ctx context.Context, actor int64, req report.AuditRequest) (report.AuditOutput, error)
}

type ReportArchive interface {
	List(ctx context.Context, kind report.Kind, limit int) ([]report.Record, error)
	Get(ctx context.Context, kind report.Kind, id int64) (report.Record, error)
}

type AuditLog interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

type Settlements interface {
	Apply(ctx context.Context, r payments.Reading) (orders.SettleResult, error)
	Async() bool
	Enqueue(r payments.Reading)
}

// API holds every HTTP handler of the store.
type API struct {
	Keys     *auth.Keys
	Accounts Accounts
	Profiles Profiles
	Codes    Codes
	Catalog  Catalog
	Carts    Carts
	Engine   OrderEngine
	Orders   OrderReader
	Reports  Reports
	Archive  ReportArchive
	Audit    AuditLog
	Settle   Settlements
	Webhooks payments.Registry
	Currency string
}

func (a *API) Register(r chi.Router) {
	// public
	r.Post("/auth/register", a.register)
	r.Post("/auth/login", a.login)
	r.Post("/auth/send-code", a.sendCode)
	r.Post("/auth/verify-code", a.verifyCode)
	r.Get("/brands", a.listBrands)
	r.Get("/categories", a.listCategories)
	r.Get("/products", a.listProducts)
	r.Get("/products/{id}", a.getProduct)
	r.Post("/webhooks/{provider}", a.webhook)

	r.Group(func(r chi.Router) {
		r.Use(a.Keys.Authenticate)

		r.Get("/me", a.me)
		r.Put("/me", a.updateMe)
		r.Post("/me/change-email", a.changeEmail)
		r.Post("/me/change-phone", a.changePhone)
		r.Get("/me/addresses", a.listAddresses)
		r.Post("/me/addresses", a.createAddress)
		r.Get("/me/addresses/{id}", a.getAddress)
		r.Put("/me/addresses/{id}", a.updateAddress)
		r.Delete("/me/addresses/{id}", a.deleteAddress)

		r.Get("/cart", a.getCart)
		r.Post("/cart/add", a.addToCart)
		r.Put("/cart/items/{id}", a.updateCartItem)
		r.Delete("/cart/items/{id}", a.removeCartItem)
		r.Post("/checkout", a.checkout)

		r.Get("/orders/mine", a.myOrders)
		r.Get("/orders/by-transaction/{trx}", a.orderByTransaction)
		r.Get("/orders/{id}", a.getOrder)
		r.Get("/orders/{id}/receipt.pdf", a.receipt)
		r.Post("/orders/{id}/pay", a.startPayment)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Post("/orders/{id}/mark-paid", a.markPaid)
			r.Post("/orders/{id}/void", a.voidOrder)
			r.Post("/orders/{id}/status", a.setStatus)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/orders", a.adminListOrders)
				r.Get("/orders/{id}/payments", a.adminOrderPayments)

				r.Get("/products", a.adminListProducts)
				r.Post("/products", a.adminCreateProduct)
				r.Get("/products/{id}", a.adminGetProduct)
				r.Put("/products/{id}", a.adminUpdateProduct)
				r.Delete("/products/{id}", a.adminDeleteProduct)
				r.Post("/products/{id}/adjust-stock", a.adminAdjustStock)

				r.Get("/users", a.adminListUsers)
				r.Post("/users", a.adminCreateUser)
				r.Get("/users/{id}", a.adminGetUser)
				r.Put("/users/{id}", a.adminUpdateUser)
				r.Delete("/users/{id}", a.adminDeleteUser)

				r.Get("/audit-logs", a.auditLogs)

				r.Get("/reports/sales", a.listSalesReports)
				r.Post("/reports/sales/generate", a.generateSalesReport)
				r.Post("/reports/sales/export-csv", a.exportSalesCSV)
				r.Get("/reports/sales/{id}/download", a.downloadSalesReport)
				r.Post("/reports/prompt", a.promptReport)
				r.Get("/reports/audit", a.listAuditReports)
				r.Post("/reports/audit/generate", a.generateAuditReport)
				r.Get("/reports/audit/{id}/download", a.downloadAuditReport)
			})
		})
	})
}
