package revenueshare

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// Repository is the persistence surface for the revenue share ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateRevenueShare(ctx context.Context, share *models.RevenueShare) (*models.RevenueShare, error)
	FindByDistrictAndInvoice(ctx context.Context, districtID uuid.UUID, invoiceRef string) (*models.RevenueShare, error)
	ListByDistrict(ctx context.Context, districtID uuid.UUID) ([]models.RevenueShare, error)
	FindDistrict(ctx context.Context, id uuid.UUID) (*models.District, error)
}
