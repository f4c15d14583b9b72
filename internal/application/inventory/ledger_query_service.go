package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// LedgerQueryService serves read-only views over the ledger: move history,
// balances, expiring batches and the reconciliation audit.
type LedgerQueryService struct {
	scope TransactionScope
}

// NewLedgerQueryService creates a new LedgerQueryService
func NewLedgerQueryService(scope TransactionScope) *LedgerQueryService {
	return &LedgerQueryService{scope: scope}
}

// MovesBySale returns every move linked to a sale, in insertion order
func (s *LedgerQueryService) MovesBySale(ctx context.Context, saleID uuid.UUID) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		moves, err = repos.MoveRepo().FindBySale(ctx, saleID)
		return err
	})
	return moves, err
}

// MovesByRefund returns every move created by a refund, in insertion order
func (s *LedgerQueryService) MovesByRefund(ctx context.Context, refundID uuid.UUID) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		moves, err = repos.MoveRepo().FindByRefund(ctx, refundID)
		return err
	})
	return moves, err
}

// BalanceFor returns the on-hand quantity for a (product, batch, location) key
func (s *LedgerQueryService) BalanceFor(ctx context.Context, productID, batchID, locationID uuid.UUID) (int64, error) {
	var quantity int64
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		bal, err := repos.BalanceRepo().FindByKey(ctx, productID, batchID, locationID)
		if err != nil {
			return err
		}
		quantity = bal.Quantity
		return nil
	})
	return quantity, err
}

// OnHand returns the total on-hand quantity for a product at a location
func (s *LedgerQueryService) OnHand(ctx context.Context, productID, locationID uuid.UUID) (int64, error) {
	var total int64
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		total, err = repos.BalanceRepo().SumByProductAndLocation(ctx, productID, locationID)
		return err
	})
	return total, err
}

// ExpiringBatches returns batches expiring within the given number of days
func (s *LedgerQueryService) ExpiringBatches(ctx context.Context, withinDays int) ([]inventory.StockBatch, error) {
	var batches []inventory.StockBatch
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		cutoff := time.Now().AddDate(0, 0, withinDays)
		var err error
		batches, err = repos.BatchRepo().FindExpiringBefore(ctx, cutoff)
		return err
	})
	return batches, err
}

// VerifyBalance checks the reconciliation invariant for one key: the sum of
// all move quantities must equal the materialized balance. A mismatch means a
// write bypassed the ledger services.
func (s *LedgerQueryService) VerifyBalance(ctx context.Context, productID, batchID, locationID uuid.UUID) error {
	return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		moveSum, err := repos.MoveRepo().SumByKey(ctx, productID, batchID, locationID)
		if err != nil {
			return err
		}
		bal, err := repos.BalanceRepo().FindByKey(ctx, productID, batchID, locationID)
		if errors.Is(err, shared.ErrNotFound) {
			if moveSum == 0 {
				return nil
			}
			return fmt.Errorf("%w: batch %s at location %s has no balance row, move sum %d",
				shared.ErrLedgerOutOfBalance, batchID, locationID, moveSum)
		}
		if err != nil {
			return err
		}
		if bal.Quantity != moveSum {
			return fmt.Errorf("%w: batch %s at location %s has balance %d, move sum %d",
				shared.ErrLedgerOutOfBalance, batchID, locationID, bal.Quantity, moveSum)
		}
		return nil
	})
}
