package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their dedup ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindRecentOrderByTableAndTotal(ctx context.Context, tableID uuid.UUID, subtotalCents int, since time.Time) (*models.Order, error)
	ListKitchenQueue(ctx context.Context, restaurantID uuid.UUID, params pagination.Params) (*KitchenQueueList, error)
	ListOrders(ctx context.Context, restaurantID uuid.UUID, params pagination.Params, filter ListOrdersFilter) (*OrderList, error)

	FindMenuItems(ctx context.Context, restaurantID uuid.UUID, ids []uuid.UUID) ([]models.MenuItem, error)
	FindTable(ctx context.Context, id uuid.UUID) (*models.Table, error)
	FindTableByToken(ctx context.Context, token string) (*models.Table, error)
	FindRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)

	CreateIdempotencyRecord(ctx context.Context, record *models.IdempotencyRecord) error
	FindIdempotencyRecord(ctx context.Context, scope, key string) (*models.IdempotencyRecord, error)
	DeleteExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error)
}

// OrderStatusUpdater is the narrow surface the bills service uses to flip an
// order to PAID when its bill closes.
type OrderStatusUpdater interface {
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}
