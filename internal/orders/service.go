package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/outbox"
	"github.com/tablyhq/tably-backend/pkg/outbox/payloads"
	"github.com/tablyhq/tably-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Options tunes the idempotent creation path.
type Options struct {
	// IdempotencyRecordTTL bounds how long a creation key is honored.
	IdempotencyRecordTTL time.Duration
	// FallbackDedupWindow enables table+total dedup for keyless callers when
	// positive. Zero disables the fallback.
	FallbackDedupWindow time.Duration
}

// Service defines the order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	CreatePublic(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	Transition(ctx context.Context, input TransitionInput) (*OrderDetail, error)
	Get(ctx context.Context, restaurantID, orderID uuid.UUID) (*OrderDetail, error)
	KitchenQueue(ctx context.Context, restaurantID uuid.UUID, params pagination.Params) (*KitchenQueueList, error)
	List(ctx context.Context, restaurantID uuid.UUID, params pagination.Params, filter ListOrdersFilter) (*OrderList, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	SweepIdempotencyRecords(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	opts   Options
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if opts.IdempotencyRecordTTL <= 0 {
		opts.IdempotencyRecordTTL = time.Hour
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc, opts: opts}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.RestaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	if input.TableID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id required")
	}
	table, err := s.repo.FindTable(ctx, input.TableID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load table")
	}
	if table.RestaurantID != input.RestaurantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "table does not belong to restaurant")
	}
	return s.create(ctx, input)
}

func (s *service) CreatePublic(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.OrderingToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ordering token required")
	}
	table, err := s.repo.FindTableByToken(ctx, input.OrderingToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown ordering token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve ordering token")
	}
	input.TableID = table.ID
	input.RestaurantID = table.RestaurantID
	return s.create(ctx, input)
}

func (s *service) create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for _, item := range input.Items {
		if item.MenuItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id required")
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item qty must be positive")
		}
	}

	scope := idempotencyScope(input.RestaurantID)

	// Replays of already-recorded keys never need the serializable path.
	if input.IdempotencyKey != "" {
		if result, err := s.findRecordedOrder(ctx, scope, input.IdempotencyKey); err != nil || result != nil {
			return result, err
		}
	}

	var result *CreateOrderResult
	err := s.tx.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		lines, subtotal, err := s.snapshotItems(ctx, repo, input.RestaurantID, input.Items)
		if err != nil {
			return err
		}

		if input.IdempotencyKey != "" {
			record, err := repo.FindIdempotencyRecord(ctx, scope, input.IdempotencyKey)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency record")
			}
			if record != nil {
				existing, err := repo.FindOrder(ctx, record.OrderID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deduplicated order")
				}
				result = &CreateOrderResult{Order: toOrderDetail(existing), Reused: true}
				return nil
			}
		} else if s.opts.FallbackDedupWindow > 0 {
			since := time.Now().Add(-s.opts.FallbackDedupWindow)
			recent, err := repo.FindRecentOrderByTableAndTotal(ctx, input.TableID, subtotal, since)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fallback dedup lookup")
			}
			if recent != nil {
				result = &CreateOrderResult{Order: toOrderDetail(recent), Reused: true}
				return nil
			}
		}

		order := &models.Order{
			RestaurantID:  input.RestaurantID,
			TableID:       input.TableID,
			Status:        enums.OrderStatusPending,
			SubtotalCents: subtotal,
			Priority:      input.Priority,
			Notes:         input.Notes,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := repo.CreateOrderItems(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		order.Items = lines

		if input.IdempotencyKey != "" {
			record := &models.IdempotencyRecord{
				Scope:     scope,
				Key:       input.IdempotencyKey,
				OrderID:   order.ID,
				ExpiresAt: time.Now().Add(s.opts.IdempotencyRecordTTL),
			}
			if err := repo.CreateIdempotencyRecord(ctx, record); err != nil {
				return err
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, input.RestaurantID, input.ActorRole),
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				RestaurantID:  order.RestaurantID,
				TableID:       order.TableID,
				SubtotalCents: order.SubtotalCents,
				ItemCount:     len(lines),
				PlacedAt:      order.PlacedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}

		result = &CreateOrderResult{Order: toOrderDetail(order)}
		return nil
	})
	if err != nil {
		// A racing request recorded the same key first; return its order.
		if input.IdempotencyKey != "" && dbpkg.IsUniqueViolation(err, "idx_idempotency_scope_key") {
			if recorded, lookupErr := s.findRecordedOrder(ctx, scope, input.IdempotencyKey); lookupErr == nil && recorded != nil {
				return recorded, nil
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *service) findRecordedOrder(ctx context.Context, scope, key string) (*CreateOrderResult, error) {
	record, err := s.repo.FindIdempotencyRecord(ctx, scope, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency record")
	}
	if record == nil {
		return nil, nil
	}
	order, err := s.repo.FindOrder(ctx, record.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Record outlived its order; treat as a fresh request.
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deduplicated order")
	}
	return &CreateOrderResult{Order: toOrderDetail(order), Reused: true}, nil
}

func (s *service) snapshotItems(ctx context.Context, repo Repository, restaurantID uuid.UUID, inputs []OrderItemInput) ([]models.OrderItem, int, error) {
	ids := make([]uuid.UUID, 0, len(inputs))
	for _, item := range inputs {
		ids = append(ids, item.MenuItemID)
	}
	menuItems, err := repo.FindMenuItems(ctx, restaurantID, ids)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
	}
	byID := make(map[uuid.UUID]models.MenuItem, len(menuItems))
	for _, item := range menuItems {
		byID[item.ID] = item
	}

	lines := make([]models.OrderItem, 0, len(inputs))
	subtotal := 0
	for _, input := range inputs {
		menuItem, ok := byID[input.MenuItemID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "unknown menu item").
				WithDetails(map[string]any{"menu_item_id": input.MenuItemID})
		}
		if !menuItem.Available {
			return nil, 0, pkgerrors.New(pkgerrors.CodeStateConflict, "menu item unavailable").
				WithDetails(map[string]any{"menu_item_id": input.MenuItemID})
		}
		lines = append(lines, models.OrderItem{
			MenuItemID:     menuItem.ID,
			Name:           menuItem.Name,
			UnitPriceCents: menuItem.PriceCents,
			Qty:            input.Qty,
		})
		subtotal += menuItem.PriceCents * input.Qty
	}
	return lines, subtotal, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*OrderDetail, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if input.Target == enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "paid is set when the bill closes")
	}

	var detail *OrderDetail
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if input.RestaurantID != uuid.Nil && order.RestaurantID != input.RestaurantID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to restaurant")
		}

		if order.Status == input.Target {
			loaded, err := repo.FindOrder(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			detail = toOrderDetail(loaded)
			return nil
		}
		if !CanTransition(order.Status, input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed").
				WithDetails(map[string]any{"from": order.Status, "to": input.Target})
		}

		updates := map[string]any{"status": input.Target}
		var servedAt time.Time
		if input.Target == enums.OrderStatusServed {
			servedAt = time.Now()
			updates["served_at"] = servedAt
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		if input.Target == enums.OrderStatusServed {
			event := outbox.DomainEvent{
				EventType:     enums.EventOrderServed,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Version:       1,
				Actor:         buildActor(input.ActorUserID, order.RestaurantID, input.ActorRole),
				Data: payloads.OrderServedEvent{
					OrderID:       order.ID,
					RestaurantID:  order.RestaurantID,
					TableID:       order.TableID,
					SubtotalCents: order.SubtotalCents,
					ServedAt:      servedAt,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order served")
			}
		}

		loaded, err := repo.FindOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		detail = toOrderDetail(loaded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *service) Get(ctx context.Context, restaurantID, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if restaurantID != uuid.Nil && order.RestaurantID != restaurantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to restaurant")
	}
	return toOrderDetail(order), nil
}

func (s *service) KitchenQueue(ctx context.Context, restaurantID uuid.UUID, params pagination.Params) (*KitchenQueueList, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	list, err := s.repo.ListKitchenQueue(ctx, restaurantID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list kitchen queue")
	}
	return list, nil
}

func (s *service) List(ctx context.Context, restaurantID uuid.UUID, params pagination.Params, filter ListOrdersFilter) (*OrderList, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	list, err := s.repo.ListOrders(ctx, restaurantID, params, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// MarkPaidTx flips a served order to PAID inside the caller's transaction.
// Replays against an already-paid order are no-ops.
func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == enums.OrderStatusPaid {
		return nil
	}
	if !CanMarkPaid(order.Status) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be marked paid").
			WithDetails(map[string]any{"from": order.Status})
	}
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": enums.OrderStatusPaid}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	return nil
}

func (s *service) SweepIdempotencyRecords(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := s.repo.DeleteExpiredIdempotencyRecords(ctx, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sweep idempotency records")
	}
	return deleted, nil
}

func idempotencyScope(restaurantID uuid.UUID) string {
	return "orders:create:" + restaurantID.String()
}

func toOrderDetail(order *models.Order) *OrderDetail {
	detail := &OrderDetail{
		ID:            order.ID,
		RestaurantID:  order.RestaurantID,
		TableID:       order.TableID,
		Status:        order.Status,
		SubtotalCents: order.SubtotalCents,
		Priority:      order.Priority,
		Notes:         order.Notes,
		PlacedAt:      order.PlacedAt,
		ServedAt:      order.ServedAt,
		Items:         make([]OrderItemDetail, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, OrderItemDetail{
			ID:             item.ID,
			MenuItemID:     item.MenuItemID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			TotalCents:     item.UnitPriceCents * item.Qty,
		})
	}
	return detail
}

func buildActor(userID, restaurantID uuid.UUID, role string) *outbox.ActorRef {
	restaurant := restaurantID
	return &outbox.ActorRef{
		UserID:       userID,
		RestaurantID: &restaurant,
		Role:         role,
	}
}
