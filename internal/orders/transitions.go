package orders

import (
	"github.com/tablyhq/tably-backend/pkg/enums"
)

// allowedTransitions is the single source of truth for caller-requested
// status changes. PAID is absent on purpose: it is never a valid request
// target and only the bill close path flips it, via CanMarkPaid. CANCELLED
// is reachable from any pre-served state.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusAccepted, enums.OrderStatusCancelled},
	enums.OrderStatusAccepted:  {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	enums.OrderStatusPreparing: {enums.OrderStatusServed, enums.OrderStatusCancelled},
	enums.OrderStatusServed:    {},
	enums.OrderStatusPaid:      {},
	enums.OrderStatusCancelled: {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanMarkPaid reports whether the bill close path may flip an order to PAID.
func CanMarkPaid(from enums.OrderStatus) bool {
	return from == enums.OrderStatusServed
}

// NextStatuses returns the statuses reachable from the given one.
func NextStatuses(from enums.OrderStatus) []enums.OrderStatus {
	next := allowedTransitions[from]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}
