package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// Repository is the persistence surface for the payment ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error)

	AggregateSucceededPayments(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (*MethodTotals, error)
	SumClosedBillDiscounts(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (int, error)
	FindSettlementByDate(ctx context.Context, restaurantID uuid.UUID, date string) (*models.Settlement, error)
	UpsertSettlement(ctx context.Context, settlement *models.Settlement) (*models.Settlement, error)
	LinkPaymentsToSettlement(ctx context.Context, settlementID, restaurantID uuid.UUID, from, to time.Time) (int64, error)
	ListRestaurantIDsWithPayments(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}
