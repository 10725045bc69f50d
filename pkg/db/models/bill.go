package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Bill holds the derived money columns. Every item or charge mutation
// recomputes subtotal/tax/total/balance in the same transaction.
type Bill struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID       uuid.UUID        `gorm:"column:restaurant_id;type:uuid;not null"`
	TableID            *uuid.UUID       `gorm:"column:table_id;type:uuid"`
	OrderID            *uuid.UUID       `gorm:"column:order_id;type:uuid;uniqueIndex"`
	Status             enums.BillStatus `gorm:"column:status;type:bill_status;not null;default:'open'"`
	TaxRateBps         int              `gorm:"column:tax_rate_bps;not null;default:0"`
	SubtotalCents      int              `gorm:"column:subtotal_cents;not null;default:0"`
	DiscountCents      int              `gorm:"column:discount_cents;not null;default:0"`
	ServiceChargeCents int              `gorm:"column:service_charge_cents;not null;default:0"`
	TaxCents           int              `gorm:"column:tax_cents;not null;default:0"`
	TaxPrimaryCents    int              `gorm:"column:tax_primary_cents;not null;default:0"`
	TaxSecondaryCents  int              `gorm:"column:tax_secondary_cents;not null;default:0"`
	TotalCents         int              `gorm:"column:total_cents;not null;default:0"`
	PaidCents          int              `gorm:"column:paid_cents;not null;default:0"`
	BalanceCents       int              `gorm:"column:balance_cents;not null;default:0"`
	Items              []BillItem       `gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE"`
	Payments           []Payment        `gorm:"foreignKey:BillID;constraint:OnDelete:RESTRICT"`
	ClosedAt           *time.Time       `gorm:"column:closed_at"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
