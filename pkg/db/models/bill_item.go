package models

import (
	"time"

	"github.com/google/uuid"
)

// BillItem is a billed line with its own price snapshot, independent of the
// order item it may have been copied from.
type BillItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BillID         uuid.UUID  `gorm:"column:bill_id;type:uuid;not null"`
	MenuItemID     *uuid.UUID `gorm:"column:menu_item_id;type:uuid"`
	Name           string     `gorm:"column:name;not null"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	Qty            int        `gorm:"column:qty;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
