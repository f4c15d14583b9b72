package inventory

import (
	"context"
	"time"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/sales"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockLocationRepository is a mock implementation of inventory.LocationRepository
type MockLocationRepository struct {
	mock.Mock
}

func (m *MockLocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Location, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Location), args.Error(1)
}

func (m *MockLocationRepository) FindByCode(ctx context.Context, code string) (*inventory.Location, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Location), args.Error(1)
}

func (m *MockLocationRepository) FindDefault(ctx context.Context) (*inventory.Location, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Location), args.Error(1)
}

func (m *MockLocationRepository) FindActive(ctx context.Context) ([]inventory.Location, error) {
	args := m.Called(ctx)
	return args.Get(0).([]inventory.Location), args.Error(1)
}

func (m *MockLocationRepository) Save(ctx context.Context, location *inventory.Location) error {
	args := m.Called(ctx, location)
	return args.Error(0)
}

// MockStockBatchRepository is a mock implementation of inventory.StockBatchRepository
type MockStockBatchRepository struct {
	mock.Mock
}

func (m *MockStockBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockBatch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.StockBatch), args.Error(1)
}

func (m *MockStockBatchRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]inventory.StockBatch, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]inventory.StockBatch), args.Error(1)
}

func (m *MockStockBatchRepository) FindByProductAndNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*inventory.StockBatch, error) {
	args := m.Called(ctx, productID, batchNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.StockBatch), args.Error(1)
}

func (m *MockStockBatchRepository) FindByProduct(ctx context.Context, productID uuid.UUID) ([]inventory.StockBatch, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).([]inventory.StockBatch), args.Error(1)
}

func (m *MockStockBatchRepository) FindExpiringBefore(ctx context.Context, cutoff time.Time) ([]inventory.StockBatch, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]inventory.StockBatch), args.Error(1)
}

func (m *MockStockBatchRepository) Save(ctx context.Context, batch *inventory.StockBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

// MockStockBalanceRepository is a mock implementation of inventory.StockBalanceRepository
type MockStockBalanceRepository struct {
	mock.Mock
}

func (m *MockStockBalanceRepository) FindByKey(ctx context.Context, productID, batchID, locationID uuid.UUID) (*inventory.StockBalance, error) {
	args := m.Called(ctx, productID, batchID, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.StockBalance), args.Error(1)
}

func (m *MockStockBalanceRepository) FindByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) ([]inventory.StockBalance, error) {
	args := m.Called(ctx, productID, locationID)
	return args.Get(0).([]inventory.StockBalance), args.Error(1)
}

func (m *MockStockBalanceRepository) LockByProductsAndLocation(ctx context.Context, productIDs []uuid.UUID, locationID uuid.UUID) ([]inventory.StockBalance, error) {
	args := m.Called(ctx, productIDs, locationID)
	return args.Get(0).([]inventory.StockBalance), args.Error(1)
}

func (m *MockStockBalanceRepository) LockByBatchIDs(ctx context.Context, locationID uuid.UUID, batchIDs []uuid.UUID) ([]inventory.StockBalance, error) {
	args := m.Called(ctx, locationID, batchIDs)
	return args.Get(0).([]inventory.StockBalance), args.Error(1)
}

func (m *MockStockBalanceRepository) GetOrCreate(ctx context.Context, productID, batchID, locationID uuid.UUID) (*inventory.StockBalance, error) {
	args := m.Called(ctx, productID, batchID, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.StockBalance), args.Error(1)
}

func (m *MockStockBalanceRepository) Save(ctx context.Context, balance *inventory.StockBalance) error {
	args := m.Called(ctx, balance)
	return args.Error(0)
}

func (m *MockStockBalanceRepository) SumByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) (int64, error) {
	args := m.Called(ctx, productID, locationID)
	return args.Get(0).(int64), args.Error(1)
}

// MockStockMoveRepository is a mock implementation of inventory.StockMoveRepository
type MockStockMoveRepository struct {
	mock.Mock
}

func (m *MockStockMoveRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockMove, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.StockMove), args.Error(1)
}

func (m *MockStockMoveRepository) FindBySale(ctx context.Context, saleID uuid.UUID) ([]inventory.StockMove, error) {
	args := m.Called(ctx, saleID)
	return args.Get(0).([]inventory.StockMove), args.Error(1)
}

func (m *MockStockMoveRepository) FindBySaleAndType(ctx context.Context, saleID uuid.UUID, moveType inventory.MoveType) ([]inventory.StockMove, error) {
	args := m.Called(ctx, saleID, moveType)
	return args.Get(0).([]inventory.StockMove), args.Error(1)
}

func (m *MockStockMoveRepository) FindBySaleLineAndType(ctx context.Context, saleLineID uuid.UUID, moveType inventory.MoveType) ([]inventory.StockMove, error) {
	args := m.Called(ctx, saleLineID, moveType)
	return args.Get(0).([]inventory.StockMove), args.Error(1)
}

func (m *MockStockMoveRepository) FindByRefund(ctx context.Context, refundID uuid.UUID) ([]inventory.StockMove, error) {
	args := m.Called(ctx, refundID)
	return args.Get(0).([]inventory.StockMove), args.Error(1)
}

func (m *MockStockMoveRepository) SumReversedBySources(ctx context.Context, sourceMoveIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	args := m.Called(ctx, sourceMoveIDs)
	return args.Get(0).(map[uuid.UUID]int64), args.Error(1)
}

func (m *MockStockMoveRepository) ExistsByRefundAndSource(ctx context.Context, refundID, sourceMoveID uuid.UUID) (bool, error) {
	args := m.Called(ctx, refundID, sourceMoveID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStockMoveRepository) SumByKey(ctx context.Context, productID, batchID, locationID uuid.UUID) (int64, error) {
	args := m.Called(ctx, productID, batchID, locationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStockMoveRepository) FindByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]inventory.StockMove, error) {
	args := m.Called(ctx, productID, limit)
	return args.Get(0).([]inventory.StockMove), args.Error(1)
}

func (m *MockStockMoveRepository) Create(ctx context.Context, move *inventory.StockMove) error {
	args := m.Called(ctx, move)
	return args.Error(0)
}

func (m *MockStockMoveRepository) CreateBatch(ctx context.Context, moves []*inventory.StockMove) error {
	args := m.Called(ctx, moves)
	return args.Error(0)
}

// MockSaleRepository is a mock implementation of sales.SaleRepository
type MockSaleRepository struct {
	mock.Mock
}

func (m *MockSaleRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Sale, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sales.Sale), args.Error(1)
}

func (m *MockSaleRepository) LockByID(ctx context.Context, id uuid.UUID) (*sales.Sale, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sales.Sale), args.Error(1)
}

// MockRefundRepository is a mock implementation of sales.RefundRepository
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sales.Refund), args.Error(1)
}

// ledgerMocks bundles one mock of every repository behind a NoOpTransactionScope
type ledgerMocks struct {
	locations *MockLocationRepository
	batches   *MockStockBatchRepository
	balances  *MockStockBalanceRepository
	moves     *MockStockMoveRepository
	sales     *MockSaleRepository
	refunds   *MockRefundRepository
	scope     *NoOpTransactionScope
}

func newLedgerMocks() *ledgerMocks {
	m := &ledgerMocks{
		locations: new(MockLocationRepository),
		batches:   new(MockStockBatchRepository),
		balances:  new(MockStockBalanceRepository),
		moves:     new(MockStockMoveRepository),
		sales:     new(MockSaleRepository),
		refunds:   new(MockRefundRepository),
	}
	m.scope = NewNoOpTransactionScope(m.locations, m.batches, m.balances, m.moves, m.sales, m.refunds)
	return m
}

func createTestLocation(active bool) *inventory.Location {
	loc, _ := inventory.NewLocation("DISP-1", "Dispensary")
	loc.Active = active
	return loc
}

func createTestBatch(productID uuid.UUID, number string, expiry *time.Time, received time.Time) *inventory.StockBatch {
	batch, _ := inventory.NewStockBatch(productID, number, expiry, received, decimal.NewFromInt(10))
	return batch
}

func createTestBalance(productID, batchID, locationID uuid.UUID, quantity int64) inventory.StockBalance {
	bal, _ := inventory.NewStockBalance(productID, batchID, locationID)
	bal.Quantity = quantity
	return *bal
}

func createFinalizedSale(locationID *uuid.UUID, lines ...sales.SaleLine) *sales.Sale {
	return &sales.Sale{
		BaseEntity: shared.NewBaseEntity(),
		Number:     "S-1001",
		Status:     sales.SaleStatusFinalized,
		LocationID: locationID,
		Lines:      lines,
	}
}

func createSaleLine(saleID, productID uuid.UUID, lineNo int, quantity int64, stockable bool) sales.SaleLine {
	return sales.SaleLine{
		BaseEntity: shared.NewBaseEntity(),
		SaleID:     saleID,
		LineNo:     lineNo,
		ProductID:  productID,
		Quantity:   quantity,
		UnitPrice:  decimal.NewFromInt(25),
		Stockable:  stockable,
	}
}

func daysFromNow(days int) *time.Time {
	t := time.Now().AddDate(0, 0, days)
	return &t
}

// memIdempotencyStore is a map-backed IdempotencyStore for exercising the
// cache fast path without Redis.
type memIdempotencyStore struct {
	keys map[string]bool
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{keys: make(map[string]bool)}
}

func (s *memIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *memIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	return s.keys[key], nil
}

func (s *memIdempotencyStore) Close() error { return nil }

var _ shared.IdempotencyStore = (*memIdempotencyStore)(nil)
