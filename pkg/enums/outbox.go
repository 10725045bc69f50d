package enums

// OutboxEventType names a domain event stored in the transactional outbox.
type OutboxEventType string

const (
	EventOrderCreated OutboxEventType = "order.created"
	EventOrderServed  OutboxEventType = "order.served"
	EventBillClosed   OutboxEventType = "bill.closed"
)

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	switch o {
	case EventOrderCreated, EventOrderServed, EventBillClosed:
		return true
	default:
		return false
	}
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
	AggregateBill  OutboxAggregateType = "bill"
)

// String implements fmt.Stringer.
func (o OutboxAggregateType) String() string {
	return string(o)
}
