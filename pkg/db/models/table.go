package models

import (
	"time"

	"github.com/google/uuid"
)

// Table is a physical table carrying the public ordering token printed on
// its QR code.
type Table struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID  uuid.UUID `gorm:"column:restaurant_id;type:uuid;not null"`
	Label         string    `gorm:"column:label;not null"`
	OrderingToken string    `gorm:"column:ordering_token;not null;uniqueIndex"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
