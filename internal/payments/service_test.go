package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
)

type stubPaymentsRepo struct {
	bills       map[uuid.UUID]*models.Bill
	payments    []*models.Payment
	settlements map[string]*models.Settlement

	failAggregateFor uuid.UUID
}

func newStubPaymentsRepo() *stubPaymentsRepo {
	return &stubPaymentsRepo{
		bills:       make(map[uuid.UUID]*models.Bill),
		settlements: make(map[string]*models.Settlement),
	}
}

func settlementKey(restaurantID uuid.UUID, date string) string {
	return restaurantID.String() + "|" + date
}

func (r *stubPaymentsRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubPaymentsRepo) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	r.payments = append(r.payments, payment)
	return payment, nil
}

func (r *stubPaymentsRepo) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	for _, payment := range r.payments {
		if payment.ID == id {
			return payment, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubPaymentsRepo) FindBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	bill, ok := r.bills[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return bill, nil
}

func (r *stubPaymentsRepo) inWindow(payment *models.Payment, restaurantID uuid.UUID, from, to time.Time) bool {
	return payment.RestaurantID == restaurantID &&
		payment.Status == enums.PaymentStatusSucceeded &&
		payment.SucceededAt != nil &&
		!payment.SucceededAt.Before(from) &&
		payment.SucceededAt.Before(to)
}

func (r *stubPaymentsRepo) AggregateSucceededPayments(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (*MethodTotals, error) {
	if r.failAggregateFor != uuid.Nil && r.failAggregateFor == restaurantID {
		return nil, gorm.ErrInvalidTransaction
	}
	totals := &MethodTotals{}
	for _, payment := range r.payments {
		if !r.inWindow(payment, restaurantID, from, to) {
			continue
		}
		switch payment.Method {
		case enums.PaymentMethodCash:
			totals.CashCents += payment.AmountCents
		case enums.PaymentMethodUPI:
			totals.UPICents += payment.AmountCents
		case enums.PaymentMethodCard:
			totals.CardCents += payment.AmountCents
		case enums.PaymentMethodQR:
			totals.QRCents += payment.AmountCents
		}
		totals.TotalCents += payment.AmountCents
		totals.PaymentCount++
	}
	return totals, nil
}

func (r *stubPaymentsRepo) SumClosedBillDiscounts(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (int, error) {
	total := 0
	for _, bill := range r.bills {
		if bill.RestaurantID != restaurantID || bill.Status != enums.BillStatusClosed || bill.ClosedAt == nil {
			continue
		}
		if !bill.ClosedAt.Before(from) && bill.ClosedAt.Before(to) {
			total += bill.DiscountCents
		}
	}
	return total, nil
}

func (r *stubPaymentsRepo) FindSettlementByDate(ctx context.Context, restaurantID uuid.UUID, date string) (*models.Settlement, error) {
	settlement, ok := r.settlements[settlementKey(restaurantID, date)]
	if !ok {
		return nil, nil
	}
	clone := *settlement
	return &clone, nil
}

func (r *stubPaymentsRepo) UpsertSettlement(ctx context.Context, settlement *models.Settlement) (*models.Settlement, error) {
	key := settlementKey(settlement.RestaurantID, settlement.Date)
	if existing, ok := r.settlements[key]; ok {
		settlement.ID = existing.ID
	} else if settlement.ID == uuid.Nil {
		settlement.ID = uuid.New()
	}
	clone := *settlement
	r.settlements[key] = &clone
	return settlement, nil
}

func (r *stubPaymentsRepo) LinkPaymentsToSettlement(ctx context.Context, settlementID, restaurantID uuid.UUID, from, to time.Time) (int64, error) {
	var linked int64
	for _, payment := range r.payments {
		if r.inWindow(payment, restaurantID, from, to) {
			id := settlementID
			payment.SettlementID = &id
			linked++
		}
	}
	return linked, nil
}

func (r *stubPaymentsRepo) ListRestaurantIDsWithPayments(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, payment := range r.payments {
		if payment.Status != enums.PaymentStatusSucceeded || payment.SucceededAt == nil {
			continue
		}
		if payment.SucceededAt.Before(from) || !payment.SucceededAt.Before(to) {
			continue
		}
		if !seen[payment.RestaurantID] {
			seen[payment.RestaurantID] = true
			ids = append(ids, payment.RestaurantID)
		}
	}
	return ids, nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

func (s *stubTxRunner) WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubRecomputer struct {
	bills []uuid.UUID
}

func (s *stubRecomputer) RecomputeTx(ctx context.Context, tx *gorm.DB, billID uuid.UUID) error {
	s.bills = append(s.bills, billID)
	return nil
}

func newPaymentsService(t *testing.T, repo *stubPaymentsRepo) (Service, *stubRecomputer) {
	t.Helper()
	recomputer := &stubRecomputer{}
	svc, err := NewService(repo, &stubTxRunner{}, recomputer, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, recomputer
}

func seedOpenBill(repo *stubPaymentsRepo, balanceCents int) *models.Bill {
	bill := &models.Bill{
		ID:           uuid.New(),
		RestaurantID: uuid.New(),
		Status:       enums.BillStatusOpen,
		TotalCents:   balanceCents,
		BalanceCents: balanceCents,
	}
	repo.bills[bill.ID] = bill
	return bill
}

func TestAddCashPaymentSettlesImmediately(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, recomputer := newPaymentsService(t, repo)
	bill := seedOpenBill(repo, 500)

	detail, err := svc.Add(context.Background(), AddPaymentInput{
		RestaurantID: bill.RestaurantID,
		BillID:       bill.ID,
		Method:       enums.PaymentMethodCash,
		AmountCents:  500,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if detail.Status != enums.PaymentStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", detail.Status)
	}
	if detail.SucceededAt == nil {
		t.Fatal("cash payment should stamp succeeded_at at creation")
	}
	if len(recomputer.bills) != 1 || recomputer.bills[0] != bill.ID {
		t.Fatalf("bill should be recomputed, got %v", recomputer.bills)
	}
}

func TestAddGatewayPaymentStartsPending(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)
	bill := seedOpenBill(repo, 500)

	reference := "upi-txn-1"
	detail, err := svc.Add(context.Background(), AddPaymentInput{
		BillID:      bill.ID,
		Method:      enums.PaymentMethodUPI,
		AmountCents: 500,
		Reference:   &reference,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if detail.Status != enums.PaymentStatusPending {
		t.Fatalf("status = %s, want pending", detail.Status)
	}
	if detail.SucceededAt != nil {
		t.Fatal("pending payment must not carry succeeded_at")
	}
}

func TestAddGatewayPaymentRequiresReference(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)
	bill := seedOpenBill(repo, 500)

	_, err := svc.Add(context.Background(), AddPaymentInput{
		BillID:      bill.ID,
		Method:      enums.PaymentMethodCard,
		AmountCents: 500,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddPaymentOverBalanceRejected(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)
	bill := seedOpenBill(repo, 100)

	_, err := svc.Add(context.Background(), AddPaymentInput{
		BillID:      bill.ID,
		Method:      enums.PaymentMethodCash,
		AmountCents: 102,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// One cent over sits inside the epsilon.
	if _, err := svc.Add(context.Background(), AddPaymentInput{
		BillID:      bill.ID,
		Method:      enums.PaymentMethodCash,
		AmountCents: 101,
	}); err != nil {
		t.Fatalf("epsilon overshoot should be accepted: %v", err)
	}
}

func TestAddPaymentClosedBillRejected(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)
	bill := seedOpenBill(repo, 100)
	bill.Status = enums.BillStatusClosed

	_, err := svc.Add(context.Background(), AddPaymentInput{
		BillID:      bill.ID,
		Method:      enums.PaymentMethodCash,
		AmountCents: 100,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestAggregateDayRecomputesFromScratch(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)
	restaurantID := uuid.New()

	day := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	outside := day.Add(48 * time.Hour)
	seed := []struct {
		method enums.PaymentMethod
		status enums.PaymentStatus
		amount int
		at     time.Time
	}{
		{enums.PaymentMethodCash, enums.PaymentStatusSucceeded, 500, day},
		{enums.PaymentMethodUPI, enums.PaymentStatusSucceeded, 300, day.Add(time.Hour)},
		{enums.PaymentMethodCard, enums.PaymentStatusSucceeded, 200, day.Add(2 * time.Hour)},
		{enums.PaymentMethodUPI, enums.PaymentStatusPending, 999, day},
		{enums.PaymentMethodCash, enums.PaymentStatusSucceeded, 700, outside},
	}
	for _, p := range seed {
		payment := &models.Payment{
			ID:           uuid.New(),
			BillID:       uuid.New(),
			RestaurantID: restaurantID,
			Method:       p.method,
			Status:       p.status,
			AmountCents:  p.amount,
		}
		if p.status == enums.PaymentStatusSucceeded {
			at := p.at
			payment.SucceededAt = &at
		}
		repo.payments = append(repo.payments, payment)
	}

	detail, err := svc.AggregateDay(context.Background(), restaurantID, "2026-08-27")
	if err != nil {
		t.Fatalf("AggregateDay: %v", err)
	}
	if detail.CashCents != 500 || detail.UPICents != 300 || detail.CardCents != 200 {
		t.Fatalf("method totals = %d/%d/%d, want 500/300/200", detail.CashCents, detail.UPICents, detail.CardCents)
	}
	if detail.TotalCents != 1000 || detail.PaymentCount != 3 {
		t.Fatalf("total/count = %d/%d, want 1000/3", detail.TotalCents, detail.PaymentCount)
	}

	// Re-running rebuilds the same figures instead of doubling them.
	again, err := svc.AggregateDay(context.Background(), restaurantID, "2026-08-27")
	if err != nil {
		t.Fatalf("AggregateDay rerun: %v", err)
	}
	if again.TotalCents != 1000 || again.PaymentCount != 3 {
		t.Fatalf("rerun total/count = %d/%d, want 1000/3", again.TotalCents, again.PaymentCount)
	}
	if again.ID != detail.ID {
		t.Fatalf("rerun should update the same row")
	}

	// Day payments end up linked to the settlement.
	linked := 0
	for _, payment := range repo.payments {
		if payment.SettlementID != nil && *payment.SettlementID == detail.ID {
			linked++
		}
	}
	if linked != 3 {
		t.Fatalf("linked payments = %d, want 3", linked)
	}
}

func TestAggregateDayPreservesExternalFigures(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)
	restaurantID := uuid.New()

	repo.settlements[settlementKey(restaurantID, "2026-08-27")] = &models.Settlement{
		ID:                   uuid.New(),
		RestaurantID:         restaurantID,
		Date:                 "2026-08-27",
		TipCents:             150,
		GatewayFeeCents:      30,
		GatewayReportedCents: 300,
	}
	at := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	repo.payments = append(repo.payments, &models.Payment{
		ID: uuid.New(), BillID: uuid.New(), RestaurantID: restaurantID,
		Method: enums.PaymentMethodUPI, Status: enums.PaymentStatusSucceeded,
		AmountCents: 280, SucceededAt: &at,
	})

	detail, err := svc.AggregateDay(context.Background(), restaurantID, "2026-08-27")
	if err != nil {
		t.Fatalf("AggregateDay: %v", err)
	}
	if detail.TipCents != 150 || detail.GatewayFeeCents != 30 {
		t.Fatalf("external figures lost: %+v", detail)
	}
	if detail.VarianceCents != 20 {
		t.Fatalf("variance = %d, want 20", detail.VarianceCents)
	}
}

func TestAggregateDayInvalidDate(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)

	_, err := svc.AggregateDay(context.Background(), uuid.New(), "27-08-2026")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAggregateAllCoversEveryRestaurant(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)

	at := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		repo.payments = append(repo.payments, &models.Payment{
			ID: uuid.New(), BillID: uuid.New(), RestaurantID: uuid.New(),
			Method: enums.PaymentMethodCash, Status: enums.PaymentStatusSucceeded,
			AmountCents: 100, SucceededAt: &at,
		})
	}

	count, err := svc.AggregateAll(context.Background(), "2026-08-27")
	if err != nil {
		t.Fatalf("AggregateAll: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if len(repo.settlements) != 2 {
		t.Fatalf("settlements = %d, want 2", len(repo.settlements))
	}
}

func TestAggregateAllContinuesAfterRestaurantFailure(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc, _ := newPaymentsService(t, repo)

	at := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	broken := uuid.New()
	healthy := uuid.New()
	for _, restaurantID := range []uuid.UUID{broken, healthy} {
		repo.payments = append(repo.payments, &models.Payment{
			ID: uuid.New(), BillID: uuid.New(), RestaurantID: restaurantID,
			Method: enums.PaymentMethodCash, Status: enums.PaymentStatusSucceeded,
			AmountCents: 100, SucceededAt: &at,
		})
	}
	repo.failAggregateFor = broken

	count, err := svc.AggregateAll(context.Background(), "2026-08-27")
	if err == nil {
		t.Fatalf("expected error for broken restaurant")
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if len(repo.settlements) != 1 {
		t.Fatalf("settlements = %d, want 1", len(repo.settlements))
	}
}
