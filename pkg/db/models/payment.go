package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Payment is a single attempt against a bill. SucceededAt is written exactly
// once, on the pending -> succeeded transition.
type Payment struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BillID       uuid.UUID           `gorm:"column:bill_id;type:uuid;not null"`
	RestaurantID uuid.UUID           `gorm:"column:restaurant_id;type:uuid;not null"`
	Method       enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Status       enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	AmountCents  int                 `gorm:"column:amount_cents;not null"`
	Reference    *string             `gorm:"column:reference"`
	SettlementID *uuid.UUID          `gorm:"column:settlement_id;type:uuid"`
	SucceededAt  *time.Time          `gorm:"column:succeeded_at"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
