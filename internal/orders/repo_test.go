package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS restaurants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  tax_rate_bps INTEGER NOT NULL DEFAULT 0,
  service_charge_cents INTEGER NOT NULL DEFAULT 0,
  district_id TEXT,
  subscription_status TEXT NOT NULL DEFAULT 'inactive',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS tables (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  label TEXT NOT NULL,
  ordering_token TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS menu_items (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  available INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  table_id TEXT NOT NULL,
  status TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  priority INTEGER NOT NULL DEFAULT 0,
  notes TEXT,
  placed_at DATETIME,
  served_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  menu_item_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS idempotency_records (
  id TEXT PRIMARY KEY,
  scope TEXT NOT NULL,
  key TEXT NOT NULL,
  order_id TEXT NOT NULL,
  expires_at DATETIME NOT NULL,
  created_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_idempotency_scope_key ON idempotency_records(scope, key);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func insertOrder(t *testing.T, repo Repository, restaurantID, tableID uuid.UUID, status enums.OrderStatus, subtotal int, placedAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		RestaurantID:  restaurantID,
		TableID:       tableID,
		Status:        status,
		SubtotalCents: subtotal,
		PlacedAt:      placedAt,
	}
	_, err := repo.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	return order
}

func TestOrdersRepoCreateAndFind(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	restaurantID := uuid.New()
	tableID := uuid.New()
	order := insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusPending, 1500, time.Now())

	items := []models.OrderItem{
		{ID: uuid.New(), OrderID: order.ID, MenuItemID: uuid.New(), Name: "dosa", UnitPriceCents: 500, Qty: 3},
	}
	require.NoError(t, repo.CreateOrderItems(ctx, items))

	found, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	assert.Len(t, found.Items, 1)
	assert.Equal(t, 500, found.Items[0].UnitPriceCents)

	_, err = repo.FindOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestOrdersRepoUpdateOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := insertOrder(t, repo, uuid.New(), uuid.New(), enums.OrderStatusPending, 900, time.Now())

	servedAt := time.Now()
	require.NoError(t, repo.UpdateOrder(ctx, order.ID, map[string]any{
		"status":    enums.OrderStatusServed,
		"served_at": servedAt,
	}))

	found, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusServed, found.Status)
	require.NotNil(t, found.ServedAt)
}

func TestOrdersRepoRecentOrderDedupLookup(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	restaurantID := uuid.New()
	tableID := uuid.New()
	now := time.Now()

	match := insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusPending, 1500, now)
	insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusCancelled, 1500, now)
	insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusPending, 999, now)

	found, err := repo.FindRecentOrderByTableAndTotal(ctx, tableID, 1500, now.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, match.ID, found.ID)

	// Outside the window nothing matches.
	found, err = repo.FindRecentOrderByTableAndTotal(ctx, tableID, 1500, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, found)

	// Different subtotal never matches.
	found, err = repo.FindRecentOrderByTableAndTotal(ctx, tableID, 777, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestOrdersRepoIdempotencyRecords(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := insertOrder(t, repo, uuid.New(), uuid.New(), enums.OrderStatusPending, 100, time.Now())

	record := &models.IdempotencyRecord{
		ID:        uuid.New(),
		Scope:     "orders:create:r1",
		Key:       "key-1",
		OrderID:   order.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.CreateIdempotencyRecord(ctx, record))

	dup := &models.IdempotencyRecord{
		ID:        uuid.New(),
		Scope:     "orders:create:r1",
		Key:       "key-1",
		OrderID:   order.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	err := repo.CreateIdempotencyRecord(ctx, dup)
	require.Error(t, err)

	found, err := repo.FindIdempotencyRecord(ctx, "orders:create:r1", "key-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.ID, found.OrderID)

	missing, err := repo.FindIdempotencyRecord(ctx, "orders:create:r1", "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrdersRepoSweepExpiredRecords(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := insertOrder(t, repo, uuid.New(), uuid.New(), enums.OrderStatusPending, 100, time.Now())

	expired := &models.IdempotencyRecord{
		ID: uuid.New(), Scope: "s", Key: "old", OrderID: order.ID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := &models.IdempotencyRecord{
		ID: uuid.New(), Scope: "s", Key: "new", OrderID: order.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.CreateIdempotencyRecord(ctx, expired))
	require.NoError(t, repo.CreateIdempotencyRecord(ctx, live))

	deleted, err := repo.DeleteExpiredIdempotencyRecords(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.FindIdempotencyRecord(ctx, "s", "new")
	require.NoError(t, err)
	assert.NotNil(t, remaining)
}

func TestOrdersRepoKitchenQueuePagination(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	restaurantID := uuid.New()
	tableID := uuid.New()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusPending, 100*(i+1), base.Add(time.Duration(i)*time.Minute))
	}
	// Served and cancelled orders stay out of the queue.
	insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusServed, 400, base)
	insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusCancelled, 500, base)

	page, err := repo.ListKitchenQueue(ctx, restaurantID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Orders[0].PlacedAt.Before(page.Orders[1].PlacedAt))

	rest, err := repo.ListKitchenQueue(ctx, restaurantID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Empty(t, rest.NextCursor)
}

func TestOrdersRepoListOrdersPaginationAndFilter(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	restaurantID := uuid.New()
	tableID := uuid.New()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusPending, 100*(i+1), base.Add(time.Duration(i)*time.Minute))
	}
	insertOrder(t, repo, restaurantID, tableID, enums.OrderStatusServed, 400, base.Add(5*time.Minute))
	// Another restaurant's order stays out of the listing.
	insertOrder(t, repo, uuid.New(), tableID, enums.OrderStatusPending, 700, base)

	page, err := repo.ListOrders(ctx, restaurantID, pagination.Params{Limit: 3}, ListOrdersFilter{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 3)
	require.NotEmpty(t, page.NextCursor)
	// Newest first.
	assert.True(t, page.Orders[0].PlacedAt.After(page.Orders[1].PlacedAt))

	rest, err := repo.ListOrders(ctx, restaurantID, pagination.Params{Limit: 3, Cursor: page.NextCursor}, ListOrdersFilter{})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Empty(t, rest.NextCursor)

	served := enums.OrderStatusServed
	filtered, err := repo.ListOrders(ctx, restaurantID, pagination.Params{}, ListOrdersFilter{Status: &served})
	require.NoError(t, err)
	require.Len(t, filtered.Orders, 1)
	assert.Equal(t, enums.OrderStatusServed, filtered.Orders[0].Status)
}
