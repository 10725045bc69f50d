package bills

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// BillItemInput adds one line to a bill. Either MenuItemID resolves the name
// and price from the menu, or Name and UnitPriceCents are given directly.
type BillItemInput struct {
	MenuItemID     *uuid.UUID
	Name           string
	UnitPriceCents int
	Qty            int
}

// CreateBillInput opens a manual bill not derived from an order.
type CreateBillInput struct {
	RestaurantID       uuid.UUID
	TableID            *uuid.UUID
	Items              []BillItemInput
	DiscountCents      int
	ServiceChargeCents *int
	ActorUserID        uuid.UUID
	ActorRole          string
}

// UpdateChargesInput patches the discount and/or service charge. Nil fields
// keep their current value.
type UpdateChargesInput struct {
	DiscountCents      *int
	ServiceChargeCents *int
}

// BillItemDetail is one billed line as returned to callers.
type BillItemDetail struct {
	ID             uuid.UUID  `json:"id"`
	MenuItemID     *uuid.UUID `json:"menu_item_id,omitempty"`
	Name           string     `json:"name"`
	UnitPriceCents int        `json:"unit_price_cents"`
	Qty            int        `json:"qty"`
	TotalCents     int        `json:"total_cents"`
}

// PaymentLine is a payment attempt as surfaced on a bill.
type PaymentLine struct {
	ID          uuid.UUID           `json:"id"`
	Method      enums.PaymentMethod `json:"method"`
	Status      enums.PaymentStatus `json:"status"`
	AmountCents int                 `json:"amount_cents"`
	Reference   *string             `json:"reference,omitempty"`
	SucceededAt *time.Time          `json:"succeeded_at,omitempty"`
}

// BillDetail is the full read model of a bill.
type BillDetail struct {
	ID                 uuid.UUID        `json:"id"`
	RestaurantID       uuid.UUID        `json:"restaurant_id"`
	TableID            *uuid.UUID       `json:"table_id,omitempty"`
	OrderID            *uuid.UUID       `json:"order_id,omitempty"`
	Status             enums.BillStatus `json:"status"`
	TaxRateBps         int              `json:"tax_rate_bps"`
	SubtotalCents      int              `json:"subtotal_cents"`
	DiscountCents      int              `json:"discount_cents"`
	ServiceChargeCents int              `json:"service_charge_cents"`
	TaxCents           int              `json:"tax_cents"`
	TaxPrimaryCents    int              `json:"tax_primary_cents"`
	TaxSecondaryCents  int              `json:"tax_secondary_cents"`
	TotalCents         int              `json:"total_cents"`
	PaidCents          int              `json:"paid_cents"`
	BalanceCents       int              `json:"balance_cents"`
	Items              []BillItemDetail `json:"items"`
	Payments           []PaymentLine    `json:"payments"`
	ClosedAt           *time.Time       `json:"closed_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// CreateBillResult reports whether an existing bill was returned instead of
// a new one being opened.
type CreateBillResult struct {
	Bill   *BillDetail `json:"bill"`
	Reused bool        `json:"reused"`
}
