package actionqueue

import (
	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// PlaceOrderItem is one requested line on a queued order.
type PlaceOrderItem struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Qty        int       `json:"qty"`
}

// PlaceOrderPayload is the stored intent behind a place_order action.
type PlaceOrderPayload struct {
	TableID  uuid.UUID        `json:"table_id"`
	Items    []PlaceOrderItem `json:"items"`
	Notes    *string          `json:"notes,omitempty"`
	Priority bool             `json:"priority,omitempty"`
}

// AddPaymentPayload is the stored intent behind an add_payment action.
type AddPaymentPayload struct {
	BillID      uuid.UUID           `json:"bill_id"`
	Method      enums.PaymentMethod `json:"method"`
	AmountCents int                 `json:"amount_cents"`
	Reference   *string             `json:"reference,omitempty"`
}

// CloseBillPayload is the stored intent behind a close_bill action.
type CloseBillPayload struct {
	BillID uuid.UUID `json:"bill_id"`
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	// Skipped is true when another pass was already in flight.
	Skipped  bool
	Synced   int
	Requeued int
	Failed   int
}
