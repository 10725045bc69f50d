package revenueshare

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a revenue share repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRevenueShare(ctx context.Context, share *models.RevenueShare) (*models.RevenueShare, error) {
	if err := r.db.WithContext(ctx).Create(share).Error; err != nil {
		return nil, err
	}
	return share, nil
}

func (r *repository) FindByDistrictAndInvoice(ctx context.Context, districtID uuid.UUID, invoiceRef string) (*models.RevenueShare, error) {
	var share models.RevenueShare
	err := r.db.WithContext(ctx).
		Where("district_id = ? AND invoice_ref = ?", districtID, invoiceRef).
		First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &share, nil
}

func (r *repository) ListByDistrict(ctx context.Context, districtID uuid.UUID) ([]models.RevenueShare, error) {
	var shares []models.RevenueShare
	err := r.db.WithContext(ctx).
		Where("district_id = ?", districtID).
		Order("created_at DESC").
		Find(&shares).Error
	if err != nil {
		return nil, err
	}
	return shares, nil
}

func (r *repository) FindDistrict(ctx context.Context, id uuid.UUID) (*models.District, error) {
	var district models.District
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&district).Error
	if err != nil {
		return nil, err
	}
	return &district, nil
}
