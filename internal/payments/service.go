package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
)

const dateLayout = "2006-01-02"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// billRecomputer refreshes a bill's derived columns after a payment lands.
type billRecomputer interface {
	RecomputeTx(ctx context.Context, tx *gorm.DB, billID uuid.UUID) error
}

// Options tunes the overpayment check.
type Options struct {
	// BalanceEpsilonCents is the overshoot a recorded amount may carry.
	BalanceEpsilonCents int
}

// Service defines the payment ledger operations.
type Service interface {
	Add(ctx context.Context, input AddPaymentInput) (*PaymentDetail, error)
	AggregateDay(ctx context.Context, restaurantID uuid.UUID, date string) (*SettlementDetail, error)
	AggregateAll(ctx context.Context, date string) (int, error)
	GetSettlement(ctx context.Context, restaurantID uuid.UUID, date string) (*SettlementDetail, error)
}

type service struct {
	repo  Repository
	tx    txRunner
	bills billRecomputer
	opts  Options
}

// NewService builds a payment service with the required dependencies.
func NewService(repo Repository, tx txRunner, bills billRecomputer, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if bills == nil {
		return nil, fmt.Errorf("bill recomputer required")
	}
	if opts.BalanceEpsilonCents <= 0 {
		opts.BalanceEpsilonCents = 1
	}
	return &service{repo: repo, tx: tx, bills: bills, opts: opts}, nil
}

// Add records a payment attempt on an open bill. Cash settles immediately
// with its succeeded_at stamped at creation; every other method starts
// pending and must carry the gateway reference.
func (s *service) Add(ctx context.Context, input AddPaymentInput) (*PaymentDetail, error) {
	if input.BillID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bill id required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Method.RequiresReference() && (input.Reference == nil || *input.Reference == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required for this method").
			WithDetails(map[string]any{"method": input.Method})
	}

	var detail *PaymentDetail
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
		if bill.Status != enums.BillStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bill is closed")
		}
		if input.AmountCents > bill.BalanceCents+s.opts.BalanceEpsilonCents {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "amount exceeds balance").
				WithDetails(map[string]any{
					"amount_cents":  input.AmountCents,
					"balance_cents": bill.BalanceCents,
				})
		}

		payment := &models.Payment{
			BillID:       bill.ID,
			RestaurantID: bill.RestaurantID,
			Method:       input.Method,
			Status:       enums.PaymentStatusPending,
			AmountCents:  input.AmountCents,
			Reference:    input.Reference,
		}
		if input.Method.SettlesImmediately() {
			now := time.Now()
			payment.Status = enums.PaymentStatusSucceeded
			payment.SucceededAt = &now
		}
		if _, err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}

		if err := s.bills.RecomputeTx(ctx, tx, bill.ID); err != nil {
			return err
		}

		detail = toPaymentDetail(payment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// AggregateDay rebuilds one restaurant-day settlement from scratch. The
// per-method sums, discount total, and payment count come straight from the
// ledger; externally reported figures on an existing row are preserved and
// the variance recomputed against them.
func (s *service) AggregateDay(ctx context.Context, restaurantID uuid.UUID, date string) (*SettlementDetail, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	from, to, err := dayBounds(date)
	if err != nil {
		return nil, err
	}

	var detail *SettlementDetail
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		totals, err := repo.AggregateSucceededPayments(ctx, restaurantID, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate payments")
		}
		discounts, err := repo.SumClosedBillDiscounts(ctx, restaurantID, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum bill discounts")
		}
		existing, err := repo.FindSettlementByDate(ctx, restaurantID, date)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
		}

		settlement := &models.Settlement{
			RestaurantID:  restaurantID,
			Date:          date,
			CashCents:     totals.CashCents,
			UPICents:      totals.UPICents,
			CardCents:     totals.CardCents,
			QRCents:       totals.QRCents,
			TotalCents:    totals.TotalCents,
			DiscountCents: discounts,
			PaymentCount:  totals.PaymentCount,
		}
		if existing != nil {
			settlement.RefundCents = existing.RefundCents
			settlement.TipCents = existing.TipCents
			settlement.GatewayFeeCents = existing.GatewayFeeCents
			settlement.GatewayReportedCents = existing.GatewayReportedCents
		}
		gatewaySettled := totals.UPICents + totals.CardCents + totals.QRCents
		settlement.VarianceCents = settlement.GatewayReportedCents - gatewaySettled

		stored, err := repo.UpsertSettlement(ctx, settlement)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert settlement")
		}

		if _, err := repo.LinkPaymentsToSettlement(ctx, stored.ID, restaurantID, from, to); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link payments")
		}

		detail = toSettlementDetail(stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// AggregateAll runs the day's aggregation for every restaurant that had a
// succeeded payment, returning how many settlements were rebuilt.
func (s *service) AggregateAll(ctx context.Context, date string) (int, error) {
	from, to, err := dayBounds(date)
	if err != nil {
		return 0, err
	}
	ids, err := s.repo.ListRestaurantIDsWithPayments(ctx, from, to)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list restaurants")
	}
	// One restaurant failing must not starve the rest of the tenant base.
	var errs []error
	aggregated := 0
	for _, id := range ids {
		if _, err := s.AggregateDay(ctx, id, date); err != nil {
			errs = append(errs, fmt.Errorf("restaurant %s: %w", id, err))
			continue
		}
		aggregated++
	}
	return aggregated, multierr.Combine(errs...)
}

func (s *service) GetSettlement(ctx context.Context, restaurantID uuid.UUID, date string) (*SettlementDetail, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid date, want YYYY-MM-DD")
	}
	settlement, err := s.repo.FindSettlementByDate(ctx, restaurantID, date)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	if settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
	}
	return toSettlementDetail(settlement), nil
}

func dayBounds(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid date, want YYYY-MM-DD")
	}
	return day, day.Add(24 * time.Hour), nil
}

func toPaymentDetail(payment *models.Payment) *PaymentDetail {
	return &PaymentDetail{
		ID:          payment.ID,
		BillID:      payment.BillID,
		Method:      payment.Method,
		Status:      payment.Status,
		AmountCents: payment.AmountCents,
		Reference:   payment.Reference,
		SucceededAt: payment.SucceededAt,
		CreatedAt:   payment.CreatedAt,
	}
}

func toSettlementDetail(settlement *models.Settlement) *SettlementDetail {
	return &SettlementDetail{
		ID:                   settlement.ID,
		RestaurantID:         settlement.RestaurantID,
		Date:                 settlement.Date,
		CashCents:            settlement.CashCents,
		UPICents:             settlement.UPICents,
		CardCents:            settlement.CardCents,
		QRCents:              settlement.QRCents,
		TotalCents:           settlement.TotalCents,
		RefundCents:          settlement.RefundCents,
		TipCents:             settlement.TipCents,
		DiscountCents:        settlement.DiscountCents,
		GatewayFeeCents:      settlement.GatewayFeeCents,
		GatewayReportedCents: settlement.GatewayReportedCents,
		VarianceCents:        settlement.VarianceCents,
		PaymentCount:         settlement.PaymentCount,
	}
}
