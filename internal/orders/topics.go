package orders

const (
	TopicOrderCreated      = "order.created"
	TopicPaymentReconciled = "order.payment.reconciled"
	TopicPaymentReview     = "order.payment.review"
)

// Key partisi = order_id, jadi event untuk satu order tetap berurutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
