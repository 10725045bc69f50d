package models

import (
	"time"

	"github.com/google/uuid"
)

// Settlement aggregates one restaurant's succeeded payments for one calendar
// day. Rows are recomputed from scratch on every aggregation run, never
// incremented, so re-running is idempotent.
type Settlement struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID         uuid.UUID `gorm:"column:restaurant_id;type:uuid;not null;uniqueIndex:idx_settlements_restaurant_date"`
	Date                 string    `gorm:"column:date;type:date;not null;uniqueIndex:idx_settlements_restaurant_date"`
	CashCents            int       `gorm:"column:cash_cents;not null;default:0"`
	UPICents             int       `gorm:"column:upi_cents;not null;default:0"`
	CardCents            int       `gorm:"column:card_cents;not null;default:0"`
	QRCents              int       `gorm:"column:qr_cents;not null;default:0"`
	TotalCents           int       `gorm:"column:total_cents;not null;default:0"`
	RefundCents          int       `gorm:"column:refund_cents;not null;default:0"`
	TipCents             int       `gorm:"column:tip_cents;not null;default:0"`
	DiscountCents        int       `gorm:"column:discount_cents;not null;default:0"`
	GatewayFeeCents      int       `gorm:"column:gateway_fee_cents;not null;default:0"`
	GatewayReportedCents int       `gorm:"column:gateway_reported_cents;not null;default:0"`
	VarianceCents        int       `gorm:"column:variance_cents;not null;default:0"`
	PaymentCount         int       `gorm:"column:payment_count;not null;default:0"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
