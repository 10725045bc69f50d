package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// WebhookEvent is the audit row for one gateway delivery, keyed by the
// gateway-assigned payment id. It is upserted, not insert-once, so a retried
// delivery can finish steps a failed attempt skipped.
type WebhookEvent struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GatewayPaymentID string                   `gorm:"column:gateway_payment_id;not null;uniqueIndex"`
	EventType        string                   `gorm:"column:event_type;not null"`
	AmountCents      int                      `gorm:"column:amount_cents;not null;default:0"`
	Status           enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status;not null"`
	Error            *string                  `gorm:"column:error"`
	Payload          json.RawMessage          `gorm:"column:payload;type:jsonb"`
	ReceivedAt       time.Time                `gorm:"column:received_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
