package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// OrderItemInput is one requested line on a new order.
type OrderItemInput struct {
	MenuItemID uuid.UUID
	Qty        int
}

// CreateOrderInput carries everything needed to place an order. Exactly one
// of TableID (staff surface) or OrderingToken (public QR surface) is set.
type CreateOrderInput struct {
	RestaurantID   uuid.UUID
	TableID        uuid.UUID
	OrderingToken  string
	Items          []OrderItemInput
	Notes          *string
	Priority       bool
	IdempotencyKey string
	ActorUserID    uuid.UUID
	ActorRole      string
}

// TransitionInput moves an order to a new lifecycle status.
type TransitionInput struct {
	OrderID      uuid.UUID
	RestaurantID uuid.UUID
	Target       enums.OrderStatus
	ActorUserID  uuid.UUID
	ActorRole    string
}

// CreateOrderResult reports the created (or deduplicated) order.
type CreateOrderResult struct {
	Order  *OrderDetail
	Reused bool
}

// OrderItemDetail is one line with its frozen price snapshot.
type OrderItemDetail struct {
	ID             uuid.UUID `json:"id"`
	MenuItemID     uuid.UUID `json:"menu_item_id"`
	Name           string    `json:"name"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Qty            int       `json:"qty"`
	TotalCents     int       `json:"total_cents"`
}

// OrderDetail is the full order view returned by reads and creation.
type OrderDetail struct {
	ID            uuid.UUID         `json:"id"`
	RestaurantID  uuid.UUID         `json:"restaurant_id"`
	TableID       uuid.UUID         `json:"table_id"`
	Status        enums.OrderStatus `json:"status"`
	SubtotalCents int               `json:"subtotal_cents"`
	Priority      bool              `json:"priority"`
	Notes         *string           `json:"notes,omitempty"`
	Items         []OrderItemDetail `json:"items"`
	PlacedAt      time.Time         `json:"placed_at"`
	ServedAt      *time.Time        `json:"served_at,omitempty"`
}

// ListOrdersFilter narrows a restaurant's order listing.
type ListOrdersFilter struct {
	Status *enums.OrderStatus
}

// OrderList wraps a paginated order listing plus the next cursor.
type OrderList struct {
	Orders     []OrderDetail `json:"orders"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// KitchenQueueEntry is one order waiting in the kitchen display.
type KitchenQueueEntry struct {
	ID            uuid.UUID         `json:"id"`
	TableID       uuid.UUID         `json:"table_id"`
	Status        enums.OrderStatus `json:"status"`
	SubtotalCents int               `json:"subtotal_cents"`
	Priority      bool              `json:"priority"`
	ItemCount     int               `json:"item_count"`
	PlacedAt      time.Time         `json:"placed_at"`
}

// KitchenQueueList wraps the paginated kitchen queue plus the next cursor.
type KitchenQueueList struct {
	Orders     []KitchenQueueEntry `json:"orders"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
