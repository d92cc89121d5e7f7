package orders

const (
	TopicPaymentApproved = "order.payment.approved"
)

// Partition key = order_id so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
