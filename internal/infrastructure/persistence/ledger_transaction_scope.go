package persistence

import (
	"context"

	appinv "github.com/clinicpos/backend/internal/application/inventory"
	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/sales"
	"gorm.io/gorm"
)

// GormTransactionScope implements the ledger TransactionScope using GORM
// transactions. Every consumption, refund and intake call runs inside exactly
// one Execute; a failure at any point rolls the whole operation back, leaving
// zero orphaned moves and untouched balances.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all ledger repositories
// within a transaction. All repositories share the same underlying tx.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// LocationRepo returns the location repository scoped to the current transaction
func (r *gormTransactionalRepositories) LocationRepo() inventory.LocationRepository {
	return NewGormLocationRepository(r.tx)
}

// BatchRepo returns the stock batch repository scoped to the current transaction
func (r *gormTransactionalRepositories) BatchRepo() inventory.StockBatchRepository {
	return NewGormStockBatchRepository(r.tx)
}

// BalanceRepo returns the stock balance repository scoped to the current transaction
func (r *gormTransactionalRepositories) BalanceRepo() inventory.StockBalanceRepository {
	return NewGormStockBalanceRepository(r.tx)
}

// MoveRepo returns the move log repository scoped to the current transaction
func (r *gormTransactionalRepositories) MoveRepo() inventory.StockMoveRepository {
	return NewGormStockMoveRepository(r.tx)
}

// SaleRepo returns the sale repository scoped to the current transaction
func (r *gormTransactionalRepositories) SaleRepo() sales.SaleRepository {
	return NewGormSaleRepository(r.tx)
}

// RefundRepo returns the refund repository scoped to the current transaction
func (r *gormTransactionalRepositories) RefundRepo() sales.RefundRepository {
	return NewGormRefundRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appinv.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appinv.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
