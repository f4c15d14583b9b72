package inventory

import (
	"context"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/sales"
)

// TransactionScope provides transactional access to the ledger repositories.
// When a function is executed within a transaction scope, all repository
// operations are part of the same database transaction and commit or roll
// back as a unit. Every consumption or refund call runs inside exactly one
// scope execution, so a failure at any point leaves zero orphaned moves and
// untouched balances.
//
// Lock discipline inside a scope: the sale row is locked first, then the
// touched balance rows in ascending batch-ID order. Two transactions
// contending for overlapping batches therefore always acquire locks in the
// same total order.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within
// a transaction. All repositories returned share the same underlying database
// transaction.
type TransactionalRepositories interface {
	// LocationRepo returns the location repository scoped to the current transaction
	LocationRepo() inventory.LocationRepository
	// BatchRepo returns the stock batch repository scoped to the current transaction
	BatchRepo() inventory.StockBatchRepository
	// BalanceRepo returns the stock balance repository scoped to the current transaction
	BalanceRepo() inventory.StockBalanceRepository
	// MoveRepo returns the move log repository scoped to the current transaction
	MoveRepo() inventory.StockMoveRepository
	// SaleRepo returns the sale repository scoped to the current transaction
	SaleRepo() sales.SaleRepository
	// RefundRepo returns the refund repository scoped to the current transaction
	RefundRepo() sales.RefundRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. Useful for tests that supply in-memory repositories.
type NoOpTransactionScope struct {
	locationRepo inventory.LocationRepository
	batchRepo    inventory.StockBatchRepository
	balanceRepo  inventory.StockBalanceRepository
	moveRepo     inventory.StockMoveRepository
	saleRepo     sales.SaleRepository
	refundRepo   sales.RefundRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over the given repositories
func NewNoOpTransactionScope(
	locationRepo inventory.LocationRepository,
	batchRepo inventory.StockBatchRepository,
	balanceRepo inventory.StockBalanceRepository,
	moveRepo inventory.StockMoveRepository,
	saleRepo sales.SaleRepository,
	refundRepo sales.RefundRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		locationRepo: locationRepo,
		batchRepo:    batchRepo,
		balanceRepo:  balanceRepo,
		moveRepo:     moveRepo,
		saleRepo:     saleRepo,
		refundRepo:   refundRepo,
	}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// LocationRepo returns the location repository
func (s *NoOpTransactionScope) LocationRepo() inventory.LocationRepository {
	return s.locationRepo
}

// BatchRepo returns the stock batch repository
func (s *NoOpTransactionScope) BatchRepo() inventory.StockBatchRepository {
	return s.batchRepo
}

// BalanceRepo returns the stock balance repository
func (s *NoOpTransactionScope) BalanceRepo() inventory.StockBalanceRepository {
	return s.balanceRepo
}

// MoveRepo returns the move log repository
func (s *NoOpTransactionScope) MoveRepo() inventory.StockMoveRepository {
	return s.moveRepo
}

// SaleRepo returns the sale repository
func (s *NoOpTransactionScope) SaleRepo() sales.SaleRepository {
	return s.saleRepo
}

// RefundRepo returns the refund repository
func (s *NoOpTransactionScope) RefundRepo() sales.RefundRepository {
	return s.refundRepo
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
