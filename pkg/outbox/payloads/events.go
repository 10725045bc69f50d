package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// OrderCreatedEvent signals a new dine-in order entering the kitchen queue.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	RestaurantID  uuid.UUID `json:"restaurant_id"`
	TableID       uuid.UUID `json:"table_id"`
	SubtotalCents int       `json:"subtotal_cents"`
	ItemCount     int       `json:"item_count"`
	PlacedAt      time.Time `json:"placed_at"`
}

// OrderServedEvent is emitted when an order reaches SERVED; downstream
// consumers attach the order to a bill and record the platform commission.
type OrderServedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	RestaurantID  uuid.UUID `json:"restaurant_id"`
	TableID       uuid.UUID `json:"table_id"`
	SubtotalCents int       `json:"subtotal_cents"`
	ServedAt      time.Time `json:"served_at"`
}

// BillClosedEvent surfaces the final totals when a bill settles.
type BillClosedEvent struct {
	BillID       uuid.UUID               `json:"bill_id"`
	RestaurantID uuid.UUID               `json:"restaurant_id"`
	OrderID      *uuid.UUID              `json:"order_id,omitempty"`
	TotalCents   int                     `json:"total_cents"`
	PaidCents    int                     `json:"paid_cents"`
	Payments     []BillClosedPaymentLine `json:"payments"`
	ClosedAt     time.Time               `json:"closed_at"`
}

// BillClosedPaymentLine is one settled tender on a closed bill.
type BillClosedPaymentLine struct {
	PaymentID   uuid.UUID           `json:"payment_id"`
	Method      enums.PaymentMethod `json:"method"`
	AmountCents int                 `json:"amount_cents"`
}
