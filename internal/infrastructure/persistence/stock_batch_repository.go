package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStockBatchRepository implements StockBatchRepository using GORM
type GormStockBatchRepository struct {
	db *gorm.DB
}

// NewGormStockBatchRepository creates a new GormStockBatchRepository
func NewGormStockBatchRepository(db *gorm.DB) *GormStockBatchRepository {
	return &GormStockBatchRepository{db: db}
}

// FindByID finds a stock batch by its ID
func (r *GormStockBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockBatch, error) {
	var batch inventory.StockBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindByIDs finds multiple batches by their IDs
func (r *GormStockBatchRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]inventory.StockBatch, error) {
	if len(ids) == 0 {
		return []inventory.StockBatch{}, nil
	}

	var batches []inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindByProductAndNumber finds the batch for a (product, batch number) pair
func (r *GormStockBatchRepository) FindByProductAndNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*inventory.StockBatch, error) {
	var batch inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND batch_number = ?", productID, batchNumber).
		First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindByProduct finds all batches for a product in expiry order, batches
// without an expiry date last
func (r *GormStockBatchRepository) FindByProduct(ctx context.Context, productID uuid.UUID) ([]inventory.StockBatch, error) {
	var batches []inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("COALESCE(expiry_date, '9999-12-31') ASC, received_date ASC, id ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindExpiringBefore finds batches whose expiry date falls before the cutoff
func (r *GormStockBatchRepository) FindExpiringBefore(ctx context.Context, cutoff time.Time) ([]inventory.StockBatch, error) {
	var batches []inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("expiry_date IS NOT NULL AND expiry_date < ?", cutoff).
		Order("expiry_date ASC, id ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// Save creates a batch. The (product, batch number) pair is unique; a
// concurrent receipt of the same pair surfaces as ErrAlreadyExists.
func (r *GormStockBatchRepository) Save(ctx context.Context, batch *inventory.StockBatch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Ensure GormStockBatchRepository implements StockBatchRepository
var _ inventory.StockBatchRepository = (*GormStockBatchRepository)(nil)
