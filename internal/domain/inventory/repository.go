package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LocationRepository defines the interface for location persistence
type LocationRepository interface {
	// FindByID finds a location by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Location, error)

	// FindByCode finds a location by its unique code
	FindByCode(ctx context.Context, code string) (*Location, error)

	// FindDefault finds the default location for unscoped operations
	FindDefault(ctx context.Context) (*Location, error)

	// FindActive finds all active locations
	FindActive(ctx context.Context) ([]Location, error)

	// Save creates or updates a location
	Save(ctx context.Context, location *Location) error
}

// StockBatchRepository defines the interface for batch persistence. Batches
// are created by the receiving flow and read-only afterwards.
type StockBatchRepository interface {
	// FindByID finds a batch by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*StockBatch, error)

	// FindByIDs finds multiple batches by their IDs
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]StockBatch, error)

	// FindByProductAndNumber finds the batch for a (product, batch number) pair
	FindByProductAndNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*StockBatch, error)

	// FindByProduct finds all batches for a product
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]StockBatch, error)

	// FindExpiringBefore finds batches whose expiry date falls before the cutoff
	FindExpiringBefore(ctx context.Context, cutoff time.Time) ([]StockBatch, error)

	// Save creates a batch
	Save(ctx context.Context, batch *StockBatch) error
}

// StockBalanceRepository defines the interface for balance persistence.
// Lock methods acquire row locks (SELECT ... FOR UPDATE) ordered by batch ID
// ascending: every transaction that touches overlapping balance rows acquires
// them in the same total order, which rules out lock cycles.
type StockBalanceRepository interface {
	// FindByKey finds the balance row for a (product, batch, location) key
	FindByKey(ctx context.Context, productID, batchID, locationID uuid.UUID) (*StockBalance, error)

	// FindByProductAndLocation finds all balance rows for a product at a location
	FindByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) ([]StockBalance, error)

	// LockByProductsAndLocation locks every balance row for the given products
	// at a location, ordered by batch ID
	LockByProductsAndLocation(ctx context.Context, productIDs []uuid.UUID, locationID uuid.UUID) ([]StockBalance, error)

	// LockByBatchIDs locks the balance rows for specific batches at a location,
	// ordered by batch ID
	LockByBatchIDs(ctx context.Context, locationID uuid.UUID, batchIDs []uuid.UUID) ([]StockBalance, error)

	// GetOrCreate returns the balance row for a key, creating a zero row if absent
	GetOrCreate(ctx context.Context, productID, batchID, locationID uuid.UUID) (*StockBalance, error)

	// Save persists a balance row with an optimistic version check
	Save(ctx context.Context, balance *StockBalance) error

	// SumByProductAndLocation sums on-hand quantity for a product at a location
	SumByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) (int64, error)
}

// StockMoveRepository defines the interface for the append-only move log.
// There is deliberately no update or delete: corrections are new moves.
type StockMoveRepository interface {
	// FindByID finds a move by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*StockMove, error)

	// FindBySale finds all moves linked to a sale, in insertion order
	FindBySale(ctx context.Context, saleID uuid.UUID) ([]StockMove, error)

	// FindBySaleAndType finds a sale's moves of one type, in insertion order
	FindBySaleAndType(ctx context.Context, saleID uuid.UUID, moveType MoveType) ([]StockMove, error)

	// FindBySaleLineAndType finds a sale line's moves of one type, in insertion order
	FindBySaleLineAndType(ctx context.Context, saleLineID uuid.UUID, moveType MoveType) ([]StockMove, error)

	// FindByRefund finds all moves created by a refund, in insertion order
	FindByRefund(ctx context.Context, refundID uuid.UUID) ([]StockMove, error)

	// SumReversedBySources returns, per source move ID, the total quantity
	// already reversed against it (partial reversals plus full reversals)
	SumReversedBySources(ctx context.Context, sourceMoveIDs []uuid.UUID) (map[uuid.UUID]int64, error)

	// ExistsByRefundAndSource reports whether a (refund, source move) pair was
	// already recorded
	ExistsByRefundAndSource(ctx context.Context, refundID, sourceMoveID uuid.UUID) (bool, error)

	// SumByKey sums all move quantities for a (product, batch, location) key;
	// at any committed state this equals the materialized balance
	SumByKey(ctx context.Context, productID, batchID, locationID uuid.UUID) (int64, error)

	// FindByProduct finds moves for a product, newest first
	FindByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]StockMove, error)

	// Create appends a move to the log
	Create(ctx context.Context, move *StockMove) error

	// CreateBatch appends multiple moves to the log
	CreateBatch(ctx context.Context, moves []*StockMove) error
}
