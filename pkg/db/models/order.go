package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Order is a table order moving through the kitchen lifecycle. Item prices
// are frozen into OrderItem rows at creation and never re-read from the menu.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID  uuid.UUID         `gorm:"column:restaurant_id;type:uuid;not null"`
	TableID       uuid.UUID         `gorm:"column:table_id;type:uuid;not null"`
	Status        enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	SubtotalCents int               `gorm:"column:subtotal_cents;not null"`
	Priority      bool              `gorm:"column:priority;not null;default:false"`
	Notes         *string           `gorm:"column:notes"`
	Items         []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PlacedAt      time.Time         `gorm:"column:placed_at;autoCreateTime"`
	ServedAt      *time.Time        `gorm:"column:served_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
