package revenueshare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
)

// DeriveInput describes one settled invoice to take a cut from.
type DeriveInput struct {
	DistrictID  uuid.UUID
	InvoiceRef  string
	PaymentRef  string
	AmountCents int
}

// ShareDetail is the stored commission row.
type ShareDetail struct {
	ID          uuid.UUID `json:"id"`
	DistrictID  uuid.UUID `json:"district_id"`
	InvoiceRef  string    `json:"invoice_ref"`
	PaymentRef  string    `json:"payment_ref"`
	AmountCents int       `json:"amount_cents"`
	RateBps     int       `json:"rate_bps"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeriveResult reports whether the invoice had already been derived.
type DeriveResult struct {
	Share   *ShareDetail `json:"share"`
	Skipped bool         `json:"skipped"`
}

// Service derives a district's commission from settled invoices, exactly
// once per invoice.
type Service interface {
	Derive(ctx context.Context, input DeriveInput) (*DeriveResult, error)
	DeriveTx(ctx context.Context, tx *gorm.DB, input DeriveInput) (*DeriveResult, error)
	ListByDistrict(ctx context.Context, districtID uuid.UUID) ([]ShareDetail, error)
}

type service struct {
	repo Repository
}

// NewService builds a revenue share service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("revenue share repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Derive(ctx context.Context, input DeriveInput) (*DeriveResult, error) {
	return s.derive(ctx, s.repo, input)
}

// DeriveTx runs the derivation inside the caller's transaction, so webhook
// processing can commit it together with the rest of its effects.
func (s *service) DeriveTx(ctx context.Context, tx *gorm.DB, input DeriveInput) (*DeriveResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	return s.derive(ctx, s.repo.WithTx(tx), input)
}

func (s *service) derive(ctx context.Context, repo Repository, input DeriveInput) (*DeriveResult, error) {
	if input.DistrictID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "district id required")
	}
	if input.InvoiceRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice ref required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	if existing, err := repo.FindByDistrictAndInvoice(ctx, input.DistrictID, input.InvoiceRef); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing share")
	} else if existing != nil {
		return &DeriveResult{Share: toShareDetail(existing), Skipped: true}, nil
	}

	district, err := repo.FindDistrict(ctx, input.DistrictID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "district not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load district")
	}

	share := &models.RevenueShare{
		DistrictID:  input.DistrictID,
		InvoiceRef:  input.InvoiceRef,
		PaymentRef:  input.PaymentRef,
		AmountCents: commission(input.AmountCents, district.RevenueShareBps),
		RateBps:     district.RevenueShareBps,
	}
	if _, err := repo.CreateRevenueShare(ctx, share); err != nil {
		// A racing delivery derived this invoice first.
		if dbpkg.IsUniqueViolation(err, "idx_revenue_shares_district_invoice") {
			existing, lookupErr := repo.FindByDistrictAndInvoice(ctx, input.DistrictID, input.InvoiceRef)
			if lookupErr == nil && existing != nil {
				return &DeriveResult{Share: toShareDetail(existing), Skipped: true}, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create revenue share")
	}
	return &DeriveResult{Share: toShareDetail(share)}, nil
}

func (s *service) ListByDistrict(ctx context.Context, districtID uuid.UUID) ([]ShareDetail, error) {
	if districtID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "district id required")
	}
	shares, err := s.repo.ListByDistrict(ctx, districtID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list revenue shares")
	}
	out := make([]ShareDetail, 0, len(shares))
	for i := range shares {
		out = append(out, *toShareDetail(&shares[i]))
	}
	return out, nil
}

// commission is amount * rate in basis points, rounded half up, in minor
// units throughout.
func commission(amountCents, rateBps int) int {
	return int(decimal.NewFromInt(int64(amountCents)).
		Mul(decimal.NewFromInt(int64(rateBps))).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart())
}

func toShareDetail(share *models.RevenueShare) *ShareDetail {
	return &ShareDetail{
		ID:          share.ID,
		DistrictID:  share.DistrictID,
		InvoiceRef:  share.InvoiceRef,
		PaymentRef:  share.PaymentRef,
		AmountCents: share.AmountCents,
		RateBps:     share.RateBps,
		CreatedAt:   share.CreatedAt,
	}
}
