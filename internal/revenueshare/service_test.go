package revenueshare

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
)

type stubShareRepo struct {
	districts map[uuid.UUID]*models.District
	shares    []*models.RevenueShare

	// raceOnCreate simulates a concurrent insert winning between the
	// pre-check and the create.
	raceOnCreate bool
}

func newStubShareRepo() *stubShareRepo {
	return &stubShareRepo{districts: make(map[uuid.UUID]*models.District)}
}

func (r *stubShareRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubShareRepo) CreateRevenueShare(ctx context.Context, share *models.RevenueShare) (*models.RevenueShare, error) {
	if r.raceOnCreate {
		r.raceOnCreate = false
		racing := *share
		racing.ID = uuid.New()
		r.shares = append(r.shares, &racing)
		return nil, errors.New(`duplicate key value violates unique constraint "idx_revenue_shares_district_invoice"`)
	}
	for _, existing := range r.shares {
		if existing.DistrictID == share.DistrictID && existing.InvoiceRef == share.InvoiceRef {
			return nil, errors.New(`duplicate key value violates unique constraint "idx_revenue_shares_district_invoice"`)
		}
	}
	if share.ID == uuid.Nil {
		share.ID = uuid.New()
	}
	r.shares = append(r.shares, share)
	return share, nil
}

func (r *stubShareRepo) FindByDistrictAndInvoice(ctx context.Context, districtID uuid.UUID, invoiceRef string) (*models.RevenueShare, error) {
	for _, share := range r.shares {
		if share.DistrictID == districtID && share.InvoiceRef == invoiceRef {
			return share, nil
		}
	}
	return nil, nil
}

func (r *stubShareRepo) ListByDistrict(ctx context.Context, districtID uuid.UUID) ([]models.RevenueShare, error) {
	var out []models.RevenueShare
	for _, share := range r.shares {
		if share.DistrictID == districtID {
			out = append(out, *share)
		}
	}
	return out, nil
}

func (r *stubShareRepo) FindDistrict(ctx context.Context, id uuid.UUID) (*models.District, error) {
	district, ok := r.districts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return district, nil
}

func seedDistrict(repo *stubShareRepo, rateBps int) uuid.UUID {
	id := uuid.New()
	repo.districts[id] = &models.District{ID: id, Name: "north", RevenueShareBps: rateBps}
	return id
}

func TestDeriveComputesCommission(t *testing.T) {
	repo := newStubShareRepo()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	districtID := seedDistrict(repo, 250)

	result, err := svc.Derive(context.Background(), DeriveInput{
		DistrictID:  districtID,
		InvoiceRef:  "inv-1",
		PaymentRef:  "pay-1",
		AmountCents: 100000,
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if result.Skipped {
		t.Fatal("first derivation should not be skipped")
	}
	if result.Share.AmountCents != 2500 {
		t.Fatalf("commission = %d, want 2500", result.Share.AmountCents)
	}
	if result.Share.RateBps != 250 {
		t.Fatalf("rate = %d, want 250", result.Share.RateBps)
	}
}

func TestDeriveRoundsHalfUp(t *testing.T) {
	repo := newStubShareRepo()
	svc, _ := NewService(repo)
	districtID := seedDistrict(repo, 250)

	// 1234 * 2.5% = 30.85 -> 31.
	result, err := svc.Derive(context.Background(), DeriveInput{
		DistrictID:  districtID,
		InvoiceRef:  "inv-round",
		AmountCents: 1234,
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if result.Share.AmountCents != 31 {
		t.Fatalf("commission = %d, want 31", result.Share.AmountCents)
	}
}

func TestDeriveDuplicateInvoiceSkipped(t *testing.T) {
	repo := newStubShareRepo()
	svc, _ := NewService(repo)
	districtID := seedDistrict(repo, 500)

	input := DeriveInput{DistrictID: districtID, InvoiceRef: "inv-2", AmountCents: 5000}
	first, err := svc.Derive(context.Background(), input)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	second, err := svc.Derive(context.Background(), input)
	if err != nil {
		t.Fatalf("Derive replay: %v", err)
	}
	if !second.Skipped {
		t.Fatal("replay should be skipped")
	}
	if second.Share.ID != first.Share.ID {
		t.Fatalf("replay share = %s, want %s", second.Share.ID, first.Share.ID)
	}
	if len(repo.shares) != 1 {
		t.Fatalf("shares = %d, want 1", len(repo.shares))
	}
}

func TestDeriveUniqueViolationRaceSkipped(t *testing.T) {
	repo := newStubShareRepo()
	svc, _ := NewService(repo)
	districtID := seedDistrict(repo, 500)
	repo.raceOnCreate = true

	result, err := svc.Derive(context.Background(), DeriveInput{
		DistrictID:  districtID,
		InvoiceRef:  "inv-race",
		AmountCents: 5000,
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if !result.Skipped {
		t.Fatal("race loser should report skipped")
	}
}

func TestDeriveValidation(t *testing.T) {
	repo := newStubShareRepo()
	svc, _ := NewService(repo)
	districtID := seedDistrict(repo, 500)

	cases := []DeriveInput{
		{DistrictID: uuid.Nil, InvoiceRef: "x", AmountCents: 100},
		{DistrictID: districtID, InvoiceRef: "", AmountCents: 100},
		{DistrictID: districtID, InvoiceRef: "x", AmountCents: 0},
	}
	for _, input := range cases {
		if _, err := svc.Derive(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}

	_, err := svc.Derive(context.Background(), DeriveInput{
		DistrictID: uuid.New(), InvoiceRef: "x", AmountCents: 100,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown district, got %v", err)
	}
}
