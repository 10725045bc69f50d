package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	var bill models.Bill
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&bill).Error
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

type methodTotalsRow struct {
	CashCents    int
	UpiCents     int
	CardCents    int
	QrCents      int
	TotalCents   int
	PaymentCount int
}

func (r *repository) AggregateSucceededPayments(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (*MethodTotals, error) {
	var row methodTotalsRow
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select(`
COALESCE(SUM(CASE WHEN method = 'cash' THEN amount_cents ELSE 0 END), 0) AS cash_cents,
COALESCE(SUM(CASE WHEN method = 'upi' THEN amount_cents ELSE 0 END), 0) AS upi_cents,
COALESCE(SUM(CASE WHEN method = 'card' THEN amount_cents ELSE 0 END), 0) AS card_cents,
COALESCE(SUM(CASE WHEN method = 'qr' THEN amount_cents ELSE 0 END), 0) AS qr_cents,
COALESCE(SUM(amount_cents), 0) AS total_cents,
COUNT(*) AS payment_count`).
		Where("restaurant_id = ? AND status = ?", restaurantID, enums.PaymentStatusSucceeded).
		Where("succeeded_at >= ? AND succeeded_at < ?", from, to).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &MethodTotals{
		CashCents:    row.CashCents,
		UPICents:     row.UpiCents,
		CardCents:    row.CardCents,
		QRCents:      row.QrCents,
		TotalCents:   row.TotalCents,
		PaymentCount: row.PaymentCount,
	}, nil
}

func (r *repository) SumClosedBillDiscounts(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&models.Bill{}).
		Select("COALESCE(SUM(discount_cents), 0)").
		Where("restaurant_id = ? AND status = ?", restaurantID, enums.BillStatusClosed).
		Where("closed_at >= ? AND closed_at < ?", from, to).
		Scan(&total).Error
	return total, err
}

func (r *repository) FindSettlementByDate(ctx context.Context, restaurantID uuid.UUID, date string) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND date = ?", restaurantID, date).
		First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settlement, nil
}

// UpsertSettlement replaces the whole aggregate for the (restaurant, date)
// key. Conflicting rows are overwritten, never incremented.
func (r *repository) UpsertSettlement(ctx context.Context, settlement *models.Settlement) (*models.Settlement, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "restaurant_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"cash_cents", "upi_cents", "card_cents", "qr_cents",
				"total_cents", "refund_cents", "tip_cents", "discount_cents",
				"gateway_fee_cents", "gateway_reported_cents", "variance_cents",
				"payment_count", "updated_at",
			}),
		}).
		Create(settlement).Error
	if err != nil {
		return nil, err
	}
	stored, err := r.FindSettlementByDate(ctx, settlement.RestaurantID, settlement.Date)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *repository) LinkPaymentsToSettlement(ctx context.Context, settlementID, restaurantID uuid.UUID, from, to time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("restaurant_id = ? AND status = ?", restaurantID, enums.PaymentStatusSucceeded).
		Where("succeeded_at >= ? AND succeeded_at < ?", from, to).
		Update("settlement_id", settlementID)
	return res.RowsAffected, res.Error
}

func (r *repository) ListRestaurantIDsWithPayments(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Distinct("restaurant_id").
		Where("status = ? AND succeeded_at >= ? AND succeeded_at < ?", enums.PaymentStatusSucceeded, from, to).
		Pluck("restaurant_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
