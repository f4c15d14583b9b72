package persistence

import (
	"context"
	"errors"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockBalanceRepository implements StockBalanceRepository using GORM.
// The lock methods issue SELECT ... FOR UPDATE ordered by batch ID ascending;
// every transaction that touches overlapping balance rows acquires them in the
// same total order, which rules out lock cycles between concurrent sales and
// refunds.
type GormStockBalanceRepository struct {
	db *gorm.DB
}

// NewGormStockBalanceRepository creates a new GormStockBalanceRepository
func NewGormStockBalanceRepository(db *gorm.DB) *GormStockBalanceRepository {
	return &GormStockBalanceRepository{db: db}
}

// FindByKey finds the balance row for a (product, batch, location) key
func (r *GormStockBalanceRepository) FindByKey(ctx context.Context, productID, batchID, locationID uuid.UUID) (*inventory.StockBalance, error) {
	var balance inventory.StockBalance
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND batch_id = ? AND location_id = ?", productID, batchID, locationID).
		First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// FindByProductAndLocation finds all balance rows for a product at a location
func (r *GormStockBalanceRepository) FindByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) ([]inventory.StockBalance, error) {
	var balances []inventory.StockBalance
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		Order("batch_id ASC").
		Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

// LockByProductsAndLocation locks every balance row for the given products at
// a location, ordered by batch ID
func (r *GormStockBalanceRepository) LockByProductsAndLocation(ctx context.Context, productIDs []uuid.UUID, locationID uuid.UUID) ([]inventory.StockBalance, error) {
	if len(productIDs) == 0 {
		return []inventory.StockBalance{}, nil
	}

	var balances []inventory.StockBalance
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id IN ? AND location_id = ?", productIDs, locationID).
		Order("batch_id ASC").
		Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

// LockByBatchIDs locks the balance rows for specific batches at a location,
// ordered by batch ID
func (r *GormStockBalanceRepository) LockByBatchIDs(ctx context.Context, locationID uuid.UUID, batchIDs []uuid.UUID) ([]inventory.StockBalance, error) {
	if len(batchIDs) == 0 {
		return []inventory.StockBalance{}, nil
	}

	var balances []inventory.StockBalance
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("location_id = ? AND batch_id IN ?", locationID, batchIDs).
		Order("batch_id ASC").
		Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

// GetOrCreate returns the balance row for a key, creating a zero row if
// absent. A concurrent insert of the same key loses on the unique index and
// falls back to reading the winner's row.
func (r *GormStockBalanceRepository) GetOrCreate(ctx context.Context, productID, batchID, locationID uuid.UUID) (*inventory.StockBalance, error) {
	balance, err := r.FindByKey(ctx, productID, batchID, locationID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	balance, err = inventory.NewStockBalance(productID, batchID, locationID)
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Create(balance).Error; err != nil {
		if isUniqueViolation(err) {
			return r.FindByKey(ctx, productID, batchID, locationID)
		}
		return nil, err
	}
	return balance, nil
}

// Save persists a mutated balance row with an optimistic version check. The
// domain bumps Version on every mutation, so the row is updated only where the
// stored version still matches the one the mutation started from.
func (r *GormStockBalanceRepository) Save(ctx context.Context, balance *inventory.StockBalance) error {
	result := r.db.WithContext(ctx).
		Model(&inventory.StockBalance{}).
		Where("id = ? AND version = ?", balance.ID, balance.Version-1).
		Updates(map[string]interface{}{
			"quantity":   balance.Quantity,
			"version":    balance.Version,
			"updated_at": balance.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// SumByProductAndLocation sums on-hand quantity for a product at a location
func (r *GormStockBalanceRepository) SumByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&inventory.StockBalance{}).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Ensure GormStockBalanceRepository implements StockBalanceRepository
var _ inventory.StockBalanceRepository = (*GormStockBalanceRepository)(nil)
