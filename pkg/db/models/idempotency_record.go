package models

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord maps a caller-scoped key to the order it produced. Rows
// are written in the same transaction as the order and swept after expiry;
// the table is a bounded dedup cache, not a system of record.
type IdempotencyRecord struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Scope     string    `gorm:"column:scope;not null;uniqueIndex:idx_idempotency_scope_key"`
	Key       string    `gorm:"column:key;not null;uniqueIndex:idx_idempotency_scope_key"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
