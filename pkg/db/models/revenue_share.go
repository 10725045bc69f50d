package models

import (
	"time"

	"github.com/google/uuid"
)

// RevenueShare is the partner's cut of one settled invoice. The unique
// (district_id, invoice_ref) key is what makes derivation exactly-once.
type RevenueShare struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DistrictID  uuid.UUID `gorm:"column:district_id;type:uuid;not null;uniqueIndex:idx_revenue_shares_district_invoice"`
	InvoiceRef  string    `gorm:"column:invoice_ref;not null;uniqueIndex:idx_revenue_shares_district_invoice"`
	PaymentRef  string    `gorm:"column:payment_ref;not null"`
	AmountCents int       `gorm:"column:amount_cents;not null"`
	RateBps     int       `gorm:"column:rate_bps;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
