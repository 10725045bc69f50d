package enums

import "fmt"

// QueuedActionType names a client mutation replayed by the offline queue.
type QueuedActionType string

const (
	QueuedActionPlaceOrder QueuedActionType = "place_order"
	QueuedActionAddPayment QueuedActionType = "add_payment"
	QueuedActionCloseBill  QueuedActionType = "close_bill"
)

var validQueuedActionTypes = []QueuedActionType{
	QueuedActionPlaceOrder,
	QueuedActionAddPayment,
	QueuedActionCloseBill,
}

// String implements fmt.Stringer.
func (q QueuedActionType) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QueuedActionType.
func (q QueuedActionType) IsValid() bool {
	for _, candidate := range validQueuedActionTypes {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQueuedActionType converts raw input into a QueuedActionType.
func ParseQueuedActionType(value string) (QueuedActionType, error) {
	for _, candidate := range validQueuedActionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queued action type %q", value)
}

// QueuedActionStatus tracks a queued action through the sync lifecycle.
type QueuedActionStatus string

const (
	QueuedActionStatusPending   QueuedActionStatus = "pending"
	QueuedActionStatusSyncing   QueuedActionStatus = "syncing"
	QueuedActionStatusCompleted QueuedActionStatus = "completed"
	QueuedActionStatusFailed    QueuedActionStatus = "failed"
)

// String implements fmt.Stringer.
func (q QueuedActionStatus) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QueuedActionStatus.
func (q QueuedActionStatus) IsValid() bool {
	switch q {
	case QueuedActionStatusPending, QueuedActionStatusSyncing,
		QueuedActionStatusCompleted, QueuedActionStatusFailed:
		return true
	default:
		return false
	}
}
