package bills

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
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderStatusUpdater marks an order paid inside the bill-close transaction.
type orderStatusUpdater interface {
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// Options tunes the close balance check.
type Options struct {
	// BalanceEpsilonCents is the residual balance a close still accepts.
	BalanceEpsilonCents int
}

// CloseInput identifies the bill to close and who asked for it.
type CloseInput struct {
	RestaurantID uuid.UUID
	BillID       uuid.UUID
	ActorUserID  uuid.UUID
	ActorRole    string
}

// Service defines the bill engine operations. Every mutation recomputes the
// derived money columns in the same transaction.
type Service interface {
	Create(ctx context.Context, input CreateBillInput) (*BillDetail, error)
	CreateFromOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*CreateBillResult, error)
	Get(ctx context.Context, restaurantID, billID uuid.UUID) (*BillDetail, error)
	AddItem(ctx context.Context, restaurantID, billID uuid.UUID, input BillItemInput) (*BillDetail, error)
	RemoveItem(ctx context.Context, restaurantID, billID, itemID uuid.UUID) (*BillDetail, error)
	UpdateCharges(ctx context.Context, restaurantID, billID uuid.UUID, input UpdateChargesInput) (*BillDetail, error)
	Close(ctx context.Context, input CloseInput) (*BillDetail, error)
	Delete(ctx context.Context, restaurantID, billID uuid.UUID) error
	RecomputeTx(ctx context.Context, tx *gorm.DB, billID uuid.UUID) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	orders orderStatusUpdater
	opts   Options
}

// NewService builds a bill service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, orders orderStatusUpdater, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bills repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order status updater required")
	}
	if opts.BalanceEpsilonCents <= 0 {
		opts.BalanceEpsilonCents = 1
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc, orders: orders, opts: opts}, nil
}

func (s *service) Create(ctx context.Context, input CreateBillInput) (*BillDetail, error) {
	if input.RestaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	if input.DiscountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount must not be negative")
	}
	if input.ServiceChargeCents != nil && *input.ServiceChargeCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service charge must not be negative")
	}

	restaurant, err := s.repo.FindRestaurant(ctx, input.RestaurantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "restaurant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load restaurant")
	}
	if input.TableID != nil {
		table, err := s.repo.FindTable(ctx, *input.TableID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load table")
		}
		if table.RestaurantID != input.RestaurantID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "table does not belong to restaurant")
		}
	}

	serviceCharge := restaurant.ServiceChargeCents
	if input.ServiceChargeCents != nil {
		serviceCharge = *input.ServiceChargeCents
	}

	var detail *BillDetail
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		lines, err := s.resolveItems(ctx, repo, input.RestaurantID, input.Items)
		if err != nil {
			return err
		}

		bill := &models.Bill{
			RestaurantID:       input.RestaurantID,
			TableID:            input.TableID,
			Status:             enums.BillStatusOpen,
			TaxRateBps:         restaurant.TaxRateBps,
			DiscountCents:      input.DiscountCents,
			ServiceChargeCents: serviceCharge,
		}
		if _, err := repo.CreateBill(ctx, bill); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bill")
		}

		for i := range lines {
			lines[i].BillID = bill.ID
		}
		if err := repo.CreateBillItems(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bill items")
		}

		if _, err := s.recompute(ctx, repo, bill); err != nil {
			return err
		}

		loaded, err := repo.FindBill(ctx, bill.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload bill")
		}
		detail = toBillDetail(loaded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// CreateFromOrder opens a bill for a served order, copying the order's frozen
// item prices. A bill already open for the order is returned as reused; the
// unique order index settles creation races.
func (s *service) CreateFromOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*CreateBillResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	if existing, err := s.repo.FindBillByOrder(ctx, orderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing bill")
	} else if existing != nil {
		return &CreateBillResult{Bill: toBillDetail(existing), Reused: true}, nil
	}

	var result *CreateBillResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if restaurantID != uuid.Nil && order.RestaurantID != restaurantID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to restaurant")
		}
		if order.Status != enums.OrderStatusServed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bill requires a served order").
				WithDetails(map[string]any{"status": order.Status})
		}

		restaurant, err := repo.FindRestaurant(ctx, order.RestaurantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load restaurant")
		}

		tableID := order.TableID
		bill := &models.Bill{
			RestaurantID:       order.RestaurantID,
			TableID:            &tableID,
			OrderID:            &order.ID,
			Status:             enums.BillStatusOpen,
			TaxRateBps:         restaurant.TaxRateBps,
			ServiceChargeCents: restaurant.ServiceChargeCents,
		}
		if _, err := repo.CreateBill(ctx, bill); err != nil {
			return err
		}

		lines := make([]models.BillItem, 0, len(order.Items))
		for _, item := range order.Items {
			menuItemID := item.MenuItemID
			lines = append(lines, models.BillItem{
				BillID:         bill.ID,
				MenuItemID:     &menuItemID,
				Name:           item.Name,
				UnitPriceCents: item.UnitPriceCents,
				Qty:            item.Qty,
			})
		}
		if err := repo.CreateBillItems(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "copy order items")
		}

		if _, err := s.recompute(ctx, repo, bill); err != nil {
			return err
		}

		loaded, err := repo.FindBill(ctx, bill.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload bill")
		}
		result = &CreateBillResult{Bill: toBillDetail(loaded)}
		return nil
	})
	if err != nil {
		// A racing request opened the bill first; return it.
		if dbpkg.IsUniqueViolation(err, "idx_bills_order") {
			if existing, lookupErr := s.repo.FindBillByOrder(ctx, orderID); lookupErr == nil && existing != nil {
				return &CreateBillResult{Bill: toBillDetail(existing), Reused: true}, nil
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, restaurantID, billID uuid.UUID) (*BillDetail, error) {
	bill, err := s.repo.FindBill(ctx, billID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bill")
	}
	if restaurantID != uuid.Nil && bill.RestaurantID != restaurantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "bill does not belong to restaurant")
	}
	return toBillDetail(bill), nil
}

func (s *service) AddItem(ctx context.Context, restaurantID, billID uuid.UUID, input BillItemInput) (*BillDetail, error) {
	return s.mutate(ctx, restaurantID, billID, func(repo Repository, bill *models.Bill) error {
		lines, err := s.resolveItems(ctx, repo, bill.RestaurantID, []BillItemInput{input})
		if err != nil {
			return err
		}
		lines[0].BillID = bill.ID
		if err := repo.CreateBillItems(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add bill item")
		}
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, restaurantID, billID, itemID uuid.UUID) (*BillDetail, error) {
	return s.mutate(ctx, restaurantID, billID, func(repo Repository, bill *models.Bill) error {
		item, err := repo.FindBillItem(ctx, bill.ID, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bill item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bill item")
		}
		if err := repo.DeleteBillItem(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove bill item")
		}
		return nil
	})
}

func (s *service) UpdateCharges(ctx context.Context, restaurantID, billID uuid.UUID, input UpdateChargesInput) (*BillDetail, error) {
	if input.DiscountCents != nil && *input.DiscountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount must not be negative")
	}
	if input.ServiceChargeCents != nil && *input.ServiceChargeCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service charge must not be negative")
	}
	return s.mutate(ctx, restaurantID, billID, func(repo Repository, bill *models.Bill) error {
		if input.DiscountCents != nil {
			bill.DiscountCents = *input.DiscountCents
		}
		if input.ServiceChargeCents != nil {
			bill.ServiceChargeCents = *input.ServiceChargeCents
		}
		return nil
	})
}

// mutate wraps an open-bill mutation with the lock, ownership check, and the
// mandatory recompute.
func (s *service) mutate(ctx context.Context, restaurantID, billID uuid.UUID, fn func(repo Repository, bill *models.Bill) error) (*BillDetail, error) {
	if billID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bill id required")
	}

	var detail *BillDetail
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bill, err := repo.FindBillForUpdate(ctx, billID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bill")
		}
		if restaurantID != uuid.Nil && bill.RestaurantID != restaurantID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "bill does not belong to restaurant")
		}
		if bill.Status != enums.BillStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bill is closed")
		}

		if err := fn(repo, bill); err != nil {
			return err
		}
		if _, err := s.recompute(ctx, repo, bill); err != nil {
			return err
		}

		loaded, err := repo.FindBill(ctx, bill.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload bill")
		}
		detail = toBillDetail(loaded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Close settles the bill. Pending payments flip to succeeded first, then the
// recomputed balance must sit inside the epsilon; the stored balance is
// zeroed on success. Closing an already-closed bill is a no-op.
func (s *service) Close(ctx context.Context, input CloseInput) (*BillDetail, error) {
	if input.BillID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bill id required")
	}

	var detail *BillDetail
	err := s.tx.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bill, err := repo.FindBillForUpdate(ctx, input.BillID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bill")
		}
		if input.RestaurantID != uuid.Nil && bill.RestaurantID != input.RestaurantID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "bill does not belong to restaurant")
		}
		if bill.Status == enums.BillStatusClosed {
			loaded, err := repo.FindBill(ctx, bill.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload bill")
			}
			detail = toBillDetail(loaded)
			return nil
		}

		closedAt := time.Now()
		if _, err := repo.MarkPendingPaymentsSucceeded(ctx, bill.ID, closedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle pending payments")
		}

		totals, err := s.recompute(ctx, repo, bill)
		if err != nil {
			return err
		}
		if totals.BalanceCents > s.opts.BalanceEpsilonCents {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "balance outstanding").
				WithDetails(map[string]any{
					"balance_cents": totals.BalanceCents,
					"total_cents":   totals.TotalCents,
				})
		}

		err = repo.UpdateBill(ctx, bill.ID, map[string]any{
			"status":        enums.BillStatusClosed,
			"closed_at":     closedAt,
			"balance_cents": 0,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close bill")
		}

		if bill.OrderID != nil {
			if err := s.orders.MarkPaidTx(ctx, tx, *bill.OrderID); err != nil {
				return err
			}
		}

		payments, err := repo.ListBillPayments(ctx, bill.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
		}
		paymentLines := make([]payloads.BillClosedPaymentLine, 0, len(payments))
		for _, payment := range payments {
			if payment.Status != enums.PaymentStatusSucceeded {
				continue
			}
			paymentLines = append(paymentLines, payloads.BillClosedPaymentLine{
				PaymentID:   payment.ID,
				Method:      payment.Method,
				AmountCents: payment.AmountCents,
			})
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventBillClosed,
			AggregateType: enums.AggregateBill,
			AggregateID:   bill.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, bill.RestaurantID, input.ActorRole),
			Data: payloads.BillClosedEvent{
				BillID:       bill.ID,
				RestaurantID: bill.RestaurantID,
				OrderID:      bill.OrderID,
				TotalCents:   totals.TotalCents,
				PaidCents:    totals.PaidCents,
				Payments:     paymentLines,
				ClosedAt:     closedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit bill closed")
		}

		loaded, err := repo.FindBill(ctx, bill.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload bill")
		}
		detail = toBillDetail(loaded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Delete removes a bill. Payments already folded into a settlement are
// detached first, decrementing the settlement's aggregates in the same
// transaction.
func (s *service) Delete(ctx context.Context, restaurantID, billID uuid.UUID) error {
	if billID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "bill id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bill, err := repo.FindBillForUpdate(ctx, billID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bill")
		}
		if restaurantID != uuid.Nil && bill.RestaurantID != restaurantID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "bill does not belong to restaurant")
		}

		payments, err := repo.ListBillPayments(ctx, bill.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
		}
		for _, payment := range payments {
			if payment.SettlementID == nil {
				continue
			}
			if err := detachFromSettlement(ctx, repo, payment); err != nil {
				return err
			}
		}

		if err := repo.DeleteBillPayments(ctx, bill.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payments")
		}
		if err := repo.DeleteBillItems(ctx, bill.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete bill items")
		}
		if err := repo.DeleteBill(ctx, bill.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete bill")
		}
		return nil
	})
}

// RecomputeTx refreshes a bill's derived columns inside the caller's
// transaction, after a payment mutation.
func (s *service) RecomputeTx(ctx context.Context, tx *gorm.DB, billID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	bill, err := repo.FindBillForUpdate(ctx, billID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bill")
	}
	_, err = s.recompute(ctx, repo, bill)
	return err
}

func (s *service) recompute(ctx context.Context, repo Repository, bill *models.Bill) (Totals, error) {
	items, err := repo.ListBillItems(ctx, bill.ID)
	if err != nil {
		return Totals{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bill items")
	}
	payments, err := repo.ListBillPayments(ctx, bill.ID)
	if err != nil {
		return Totals{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	totals := ComputeTotals(items, payments, bill.DiscountCents, bill.ServiceChargeCents, bill.TaxRateBps)
	if err := repo.UpdateBill(ctx, bill.ID, totals.asUpdates()); err != nil {
		return Totals{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store bill totals")
	}
	return totals, nil
}

func (s *service) resolveItems(ctx context.Context, repo Repository, restaurantID uuid.UUID, inputs []BillItemInput) ([]models.BillItem, error) {
	ids := make([]uuid.UUID, 0, len(inputs))
	for _, input := range inputs {
		if input.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item qty must be positive")
		}
		if input.MenuItemID != nil {
			ids = append(ids, *input.MenuItemID)
		}
	}

	byID := make(map[uuid.UUID]models.MenuItem, len(ids))
	if len(ids) > 0 {
		menuItems, err := repo.FindMenuItems(ctx, restaurantID, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
		}
		for _, item := range menuItems {
			byID[item.ID] = item
		}
	}

	lines := make([]models.BillItem, 0, len(inputs))
	for _, input := range inputs {
		line := models.BillItem{
			MenuItemID:     input.MenuItemID,
			Name:           input.Name,
			UnitPriceCents: input.UnitPriceCents,
			Qty:            input.Qty,
		}
		if input.MenuItemID != nil {
			menuItem, ok := byID[*input.MenuItemID]
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown menu item").
					WithDetails(map[string]any{"menu_item_id": *input.MenuItemID})
			}
			if line.Name == "" {
				line.Name = menuItem.Name
			}
			if input.UnitPriceCents == 0 {
				line.UnitPriceCents = menuItem.PriceCents
			}
		}
		if line.Name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name required")
		}
		if line.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative")
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func detachFromSettlement(ctx context.Context, repo Repository, payment models.Payment) error {
	settlement, err := repo.FindSettlementForUpdate(ctx, *payment.SettlementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}

	updates := map[string]any{
		"total_cents":   settlement.TotalCents - payment.AmountCents,
		"payment_count": settlement.PaymentCount - 1,
	}
	upi, card, qr := settlement.UPICents, settlement.CardCents, settlement.QRCents
	switch payment.Method {
	case enums.PaymentMethodCash:
		updates["cash_cents"] = settlement.CashCents - payment.AmountCents
	case enums.PaymentMethodUPI:
		upi -= payment.AmountCents
		updates["upi_cents"] = upi
	case enums.PaymentMethodCard:
		card -= payment.AmountCents
		updates["card_cents"] = card
	case enums.PaymentMethodQR:
		qr -= payment.AmountCents
		updates["qr_cents"] = qr
	}
	// Variance compares the gateway report against gateway-settled methods
	// only; cash never enters it.
	updates["variance_cents"] = settlement.GatewayReportedCents - (upi + card + qr)

	if err := repo.UpdateSettlement(ctx, settlement.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach payment from settlement")
	}
	return nil
}

func toBillDetail(bill *models.Bill) *BillDetail {
	detail := &BillDetail{
		ID:                 bill.ID,
		RestaurantID:       bill.RestaurantID,
		TableID:            bill.TableID,
		OrderID:            bill.OrderID,
		Status:             bill.Status,
		TaxRateBps:         bill.TaxRateBps,
		SubtotalCents:      bill.SubtotalCents,
		DiscountCents:      bill.DiscountCents,
		ServiceChargeCents: bill.ServiceChargeCents,
		TaxCents:           bill.TaxCents,
		TaxPrimaryCents:    bill.TaxPrimaryCents,
		TaxSecondaryCents:  bill.TaxSecondaryCents,
		TotalCents:         bill.TotalCents,
		PaidCents:          bill.PaidCents,
		BalanceCents:       bill.BalanceCents,
		Items:              make([]BillItemDetail, 0, len(bill.Items)),
		Payments:           make([]PaymentLine, 0, len(bill.Payments)),
		ClosedAt:           bill.ClosedAt,
		CreatedAt:          bill.CreatedAt,
	}
	for _, item := range bill.Items {
		detail.Items = append(detail.Items, BillItemDetail{
			ID:             item.ID,
			MenuItemID:     item.MenuItemID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			TotalCents:     item.UnitPriceCents * item.Qty,
		})
	}
	for _, payment := range bill.Payments {
		detail.Payments = append(detail.Payments, PaymentLine{
			ID:          payment.ID,
			Method:      payment.Method,
			Status:      payment.Status,
			AmountCents: payment.AmountCents,
			Reference:   payment.Reference,
			SucceededAt: payment.SucceededAt,
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
