package models

import (
	"time"

	"github.com/google/uuid"
)

// District is a reseller/partner territory entitled to a revenue share of
// settled platform invoices.
type District struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string    `gorm:"column:name;not null"`
	RevenueShareBps int       `gorm:"column:revenue_share_bps;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
