package bills

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// Repository is the persistence surface for the bill engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateBill(ctx context.Context, bill *models.Bill) (*models.Bill, error)
	FindBill(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	FindBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	FindBillByOrder(ctx context.Context, orderID uuid.UUID) (*models.Bill, error)
	UpdateBill(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteBill(ctx context.Context, id uuid.UUID) error

	CreateBillItems(ctx context.Context, items []models.BillItem) error
	FindBillItem(ctx context.Context, billID, itemID uuid.UUID) (*models.BillItem, error)
	DeleteBillItem(ctx context.Context, id uuid.UUID) error
	DeleteBillItems(ctx context.Context, billID uuid.UUID) error
	ListBillItems(ctx context.Context, billID uuid.UUID) ([]models.BillItem, error)

	ListBillPayments(ctx context.Context, billID uuid.UUID) ([]models.Payment, error)
	MarkPendingPaymentsSucceeded(ctx context.Context, billID uuid.UUID, at time.Time) (int64, error)
	DeleteBillPayments(ctx context.Context, billID uuid.UUID) error

	FindSettlementForUpdate(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	UpdateSettlement(ctx context.Context, id uuid.UUID, updates map[string]any) error

	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindMenuItems(ctx context.Context, restaurantID uuid.UUID, ids []uuid.UUID) ([]models.MenuItem, error)
	FindTable(ctx context.Context, id uuid.UUID) (*models.Table, error)
	FindRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
}
