package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Restaurant is the tenant row. Tenant management lives outside this service;
// the columns here are the ones billing and webhook reconciliation depend on.
type Restaurant struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string                   `gorm:"column:name;not null"`
	TaxRateBps         int                      `gorm:"column:tax_rate_bps;not null;default:0"`
	ServiceChargeCents int                      `gorm:"column:service_charge_cents;not null;default:0"`
	DistrictID         *uuid.UUID               `gorm:"column:district_id;type:uuid"`
	SubscriptionStatus enums.SubscriptionStatus `gorm:"column:subscription_status;type:subscription_status;not null;default:'inactive'"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
