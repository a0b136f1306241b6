package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderPaid          = "order.paid"
	TopicOrderVoided        = "order.voided"
	TopicOrderStatusChanged = "order.status.changed"
	TopicPaymentCallbacks   = "payment.callbacks"
)

// PartitionKey keeps every event of one order on the same partition.
func PartitionKey(transactionNumber string) []byte { return []byte(transactionNumber) }
