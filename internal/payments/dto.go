package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// AddPaymentInput records one payment attempt against an open bill.
type AddPaymentInput struct {
	RestaurantID uuid.UUID
	BillID       uuid.UUID
	Method       enums.PaymentMethod
	AmountCents  int
	Reference    *string
}

// PaymentDetail is the read model of a recorded payment.
type PaymentDetail struct {
	ID          uuid.UUID           `json:"id"`
	BillID      uuid.UUID           `json:"bill_id"`
	Method      enums.PaymentMethod `json:"method"`
	Status      enums.PaymentStatus `json:"status"`
	AmountCents int                 `json:"amount_cents"`
	Reference   *string             `json:"reference,omitempty"`
	SucceededAt *time.Time          `json:"succeeded_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// SettlementDetail is one restaurant-day aggregate.
type SettlementDetail struct {
	ID                   uuid.UUID `json:"id"`
	RestaurantID         uuid.UUID `json:"restaurant_id"`
	Date                 string    `json:"date"`
	CashCents            int       `json:"cash_cents"`
	UPICents             int       `json:"upi_cents"`
	CardCents            int       `json:"card_cents"`
	QRCents              int       `json:"qr_cents"`
	TotalCents           int       `json:"total_cents"`
	RefundCents          int       `json:"refund_cents"`
	TipCents             int       `json:"tip_cents"`
	DiscountCents        int       `json:"discount_cents"`
	GatewayFeeCents      int       `json:"gateway_fee_cents"`
	GatewayReportedCents int       `json:"gateway_reported_cents"`
	VarianceCents        int       `json:"variance_cents"`
	PaymentCount         int       `json:"payment_count"`
}

// MethodTotals is the per-method aggregate scanned out of the payments table.
type MethodTotals struct {
	CashCents    int
	UPICents     int
	CardCents    int
	QRCents      int
	TotalCents   int
	PaymentCount int
}
