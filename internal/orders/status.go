package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusRefunded  Status = "REFUNDED"
	StatusCancelled Status = "CANCELLED"
)

// TxStatus is the financial validity of an order, independent of Status.
type TxStatus string

const (
	TxValid TxStatus = "VALID"
	TxVoid  TxStatus = "VOID"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusCancelled: true, StatusShipped: true, StatusDelivered: true, StatusRefunded: true},
	StatusShipped:   {StatusDelivered: true, StatusRefunded: true},
	StatusDelivered: {},
	StatusRefunded:  {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// HoldsStock reports whether the order's quantities are currently taken out of product stock.
func (s Status) HoldsStock() bool {
	return s == StatusPaid || s == StatusShipped
}

// Sold reports whether the order counts towards sales figures.
func (s Status) Sold() bool {
	return s == StatusPaid || s == StatusShipped || s == StatusDelivered
}

type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "CREATED"
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCanceled  PaymentStatus = "CANCELED"
)

var paymentMethods = map[string]bool{"": true, "QR": true, "CASH": true, "CARD": true}
