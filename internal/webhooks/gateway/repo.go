package gatewaywebhook

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// Repository is the persistence surface for webhook reconciliation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.WebhookEvent, error)
	UpsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, error)
	FindRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
	UpdateRestaurant(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a webhook repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("gateway_payment_id = ?", gatewayPaymentID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// UpsertWebhookEvent writes the audit row for a delivery. Upserting rather
// than inserting once lets a retried delivery move a FAILED row forward.
func (r *repository) UpsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "gateway_payment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"event_type", "amount_cents", "status", "error", "payload", "updated_at",
			}),
		}).
		Create(event).Error
	if err != nil {
		return nil, err
	}
	stored, err := r.FindByGatewayPaymentID(ctx, event.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *repository) FindRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&restaurant).Error
	if err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *repository) UpdateRestaurant(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Restaurant{}).
		Where("id = ?", id).
		Updates(updates).Error
}
