package persistence

import (
	"context"
	"errors"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStockMoveRepository implements StockMoveRepository using GORM. The move
// log is append-only: the repository exposes Create and CreateBatch and no
// update or delete, and unique-index collisions on the idempotency key or the
// (refund, source move) pair surface as ErrAlreadyExists so callers can treat
// a lost race as a replay.
type GormStockMoveRepository struct {
	db *gorm.DB
}

// NewGormStockMoveRepository creates a new GormStockMoveRepository
func NewGormStockMoveRepository(db *gorm.DB) *GormStockMoveRepository {
	return &GormStockMoveRepository{db: db}
}

// FindByID finds a move by its ID
func (r *GormStockMoveRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockMove, error) {
	var move inventory.StockMove
	if err := r.db.WithContext(ctx).First(&move, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &move, nil
}

// FindBySale finds all moves linked to a sale, in insertion order
func (r *GormStockMoveRepository) FindBySale(ctx context.Context, saleID uuid.UUID) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	if err := r.db.WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("created_at ASC, id ASC").
		Find(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}

// FindBySaleAndType finds a sale's moves of one type, in insertion order
func (r *GormStockMoveRepository) FindBySaleAndType(ctx context.Context, saleID uuid.UUID, moveType inventory.MoveType) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	if err := r.db.WithContext(ctx).
		Where("sale_id = ? AND move_type = ?", saleID, moveType).
		Order("created_at ASC, id ASC").
		Find(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}

// FindBySaleLineAndType finds a sale line's moves of one type, in insertion order
func (r *GormStockMoveRepository) FindBySaleLineAndType(ctx context.Context, saleLineID uuid.UUID, moveType inventory.MoveType) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	if err := r.db.WithContext(ctx).
		Where("sale_line_id = ? AND move_type = ?", saleLineID, moveType).
		Order("created_at ASC, id ASC").
		Find(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}

// FindByRefund finds all moves created by a refund, in insertion order
func (r *GormStockMoveRepository) FindByRefund(ctx context.Context, refundID uuid.UUID) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	if err := r.db.WithContext(ctx).
		Where("refund_id = ?", refundID).
		Order("created_at ASC, id ASC").
		Find(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}

// SumReversedBySources returns, per source move ID, the total quantity already
// reversed against it. Full reversals point via reversed_move_id and partial
// reversals via source_move_id; both count against the same cap.
func (r *GormStockMoveRepository) SumReversedBySources(ctx context.Context, sourceMoveIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	result := make(map[uuid.UUID]int64, len(sourceMoveIDs))
	if len(sourceMoveIDs) == 0 {
		return result, nil
	}

	type reversedSum struct {
		SourceID uuid.UUID `gorm:"column:source_id"`
		Total    int64     `gorm:"column:total"`
	}

	var sums []reversedSum
	if err := r.db.WithContext(ctx).
		Model(&inventory.StockMove{}).
		Select("COALESCE(source_move_id, reversed_move_id) AS source_id, SUM(quantity) AS total").
		Where("source_move_id IN ? OR reversed_move_id IN ?", sourceMoveIDs, sourceMoveIDs).
		Group("COALESCE(source_move_id, reversed_move_id)").
		Scan(&sums).Error; err != nil {
		return nil, err
	}

	for _, s := range sums {
		result[s.SourceID] = s.Total
	}
	return result, nil
}

// ExistsByRefundAndSource reports whether a (refund, source move) pair was
// already recorded
func (r *GormStockMoveRepository) ExistsByRefundAndSource(ctx context.Context, refundID, sourceMoveID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&inventory.StockMove{}).
		Where("refund_id = ? AND source_move_id = ?", refundID, sourceMoveID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SumByKey sums all move quantities for a (product, batch, location) key. At
// any committed state this equals the materialized balance row.
func (r *GormStockMoveRepository) SumByKey(ctx context.Context, productID, batchID, locationID uuid.UUID) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&inventory.StockMove{}).
		Where("product_id = ? AND batch_id = ? AND location_id = ?", productID, batchID, locationID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// FindByProduct finds moves for a product, newest first
func (r *GormStockMoveRepository) FindByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]inventory.StockMove, error) {
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var moves []inventory.StockMove
	if err := query.Find(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}

// Create appends a move to the log
func (r *GormStockMoveRepository) Create(ctx context.Context, move *inventory.StockMove) error {
	if err := r.db.WithContext(ctx).Create(move).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// CreateBatch appends multiple moves to the log
func (r *GormStockMoveRepository) CreateBatch(ctx context.Context, moves []*inventory.StockMove) error {
	if len(moves) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&moves).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Ensure GormStockMoveRepository implements StockMoveRepository
var _ inventory.StockMoveRepository = (*GormStockMoveRepository)(nil)
