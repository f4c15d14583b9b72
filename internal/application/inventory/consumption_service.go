package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsumptionService executes allocation plans for finalized sales. Each call
// runs as one transaction: the sale row is locked, balance rows for every
// stockable line are locked in batch-ID order, each line is planned FEFO, and
// sale-out moves are written with their balance decrements. Any line's
// failure rolls back the whole sale.
type ConsumptionService struct {
	scope     TransactionScope
	allocator *inventory.FEFOAllocator
	observer  LedgerObserver
	opCache   shared.IdempotencyStore
	cacheTTL  shared.IdempotencyConfig
	logger    *zap.Logger
}

// NewConsumptionService creates a new ConsumptionService
func NewConsumptionService(
	scope TransactionScope,
	allocator *inventory.FEFOAllocator,
	observer LedgerObserver,
	logger *zap.Logger,
) *ConsumptionService {
	if observer == nil {
		observer = NopLedgerObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsumptionService{
		scope:     scope,
		allocator: allocator,
		observer:  observer,
		cacheTTL:  shared.DefaultIdempotencyConfig(),
		logger:    logger,
	}
}

// SetIdempotencyCache enables the best-effort duplicate fast path
func (s *ConsumptionService) SetIdempotencyCache(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) {
	s.opCache = store
	s.cacheTTL = cfg
}

// Consume writes sale-out moves and balance decrements for every stockable
// line of a finalized sale. Calling it again for the same sale returns the
// previously recorded moves without side effects. A zero location ID resolves
// to the sale's location, falling back to the default location.
func (s *ConsumptionService) Consume(ctx context.Context, saleID, locationID, actorID uuid.UUID) ([]inventory.StockMove, error) {
	if saleID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SALE", "Sale ID cannot be empty")
	}
	if actorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACTOR", "Actor ID cannot be empty")
	}

	opKey := consumeOperationKey(saleID)
	if s.cacheHit(ctx, opKey) {
		return s.existingSaleOuts(ctx, saleID)
	}

	var (
		moves    []inventory.StockMove
		replayed bool
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		sale, err := repos.SaleRepo().LockByID(ctx, saleID)
		if err != nil {
			return fmt.Errorf("lock sale %s: %w", saleID, err)
		}
		if !sale.IsFinalized() {
			return fmt.Errorf("%w: sale %s is %s", shared.ErrSaleNotFinalized, sale.Number, sale.Status)
		}

		existing, err := repos.MoveRepo().FindBySaleAndType(ctx, saleID, inventory.MoveTypeSaleOut)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			moves = existing
			replayed = true
			return nil
		}

		lines := sale.StockableLines()
		if len(lines) == 0 {
			moves = []inventory.StockMove{}
			return nil
		}

		loc, err := s.resolveLocation(ctx, repos, sale.LocationID, locationID)
		if err != nil {
			return err
		}

		productIDs := make([]uuid.UUID, 0, len(lines))
		seen := make(map[uuid.UUID]struct{}, len(lines))
		for _, line := range lines {
			if _, ok := seen[line.ProductID]; !ok {
				seen[line.ProductID] = struct{}{}
				productIDs = append(productIDs, line.ProductID)
			}
		}

		// One lock acquisition for every balance row the sale can touch,
		// ordered by batch ID.
		balances, err := repos.BalanceRepo().LockByProductsAndLocation(ctx, productIDs, loc.ID)
		if err != nil {
			return fmt.Errorf("lock balances: %w", err)
		}
		batches, err := s.loadBatches(ctx, repos, balances)
		if err != nil {
			return err
		}

		balanceByBatch := make(map[uuid.UUID]*inventory.StockBalance, len(balances))
		for i := range balances {
			balanceByBatch[balances[i].BatchID] = &balances[i]
		}

		for _, line := range lines {
			if line.Quantity <= 0 {
				return shared.NewDomainError("INVALID_QUANTITY",
					fmt.Sprintf("Sale line %d has non-positive quantity", line.LineNo))
			}

			stock := make([]inventory.BatchStock, 0, len(balances))
			for i := range balances {
				if balances[i].ProductID != line.ProductID {
					continue
				}
				batch, ok := batches[balances[i].BatchID]
				if !ok {
					return fmt.Errorf("balance %s references unknown batch %s",
						balances[i].ID, balances[i].BatchID)
				}
				stock = append(stock, inventory.BatchStock{Batch: batch, Available: balances[i].Quantity})
			}

			plan, err := s.allocator.Allocate(line.ProductID, loc.ID, line.Quantity, inventory.AllocateOptions{}, stock)
			if err != nil {
				return err
			}

			lineID := line.ID
			for _, alloc := range plan.Allocations {
				move, err := inventory.NewSaleOutMove(
					line.ProductID, alloc.Batch.ID, loc.ID,
					alloc.Quantity, saleID, lineID, actorID,
				)
				if err != nil {
					return err
				}
				if err := repos.MoveRepo().Create(ctx, move); err != nil {
					return err
				}
				bal := balanceByBatch[alloc.Batch.ID]
				if err := bal.Deduct(alloc.Quantity); err != nil {
					return err
				}
				if err := repos.BalanceRepo().Save(ctx, bal); err != nil {
					return err
				}
				moves = append(moves, *move)
			}
		}
		return nil
	})
	if err != nil {
		// A concurrent retry lost the race on the idempotency index; the
		// winner's moves are the result.
		if errors.Is(err, shared.ErrAlreadyExists) || errors.Is(err, shared.ErrIdempotencyConflict) {
			s.logger.Info("consume replayed concurrently", zap.String("sale_id", saleID.String()))
			return s.existingSaleOuts(ctx, saleID)
		}
		s.reportRejection(ctx, "consume", err)
		return nil, err
	}

	s.markProcessed(ctx, opKey)
	if !replayed && len(moves) > 0 {
		safeObserve(s.logger, func() {
			s.observer.MovesRecorded(ctx, "consume", moves)
			var units int64
			for _, m := range moves {
				units += m.AbsQuantity()
			}
			s.observer.ObserveConsumedUnits(ctx, units)
		})
	}
	return moves, nil
}

// Allocate plans a consumption without writing anything. It is exposed so the
// sale workflow can preview batch draws before finalization.
func (s *ConsumptionService) Allocate(
	ctx context.Context,
	productID, locationID uuid.UUID,
	quantity int64,
	allowExpired bool,
) (inventory.AllocationPlan, error) {
	var plan inventory.AllocationPlan
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		loc, err := s.resolveLocation(ctx, repos, nil, locationID)
		if err != nil {
			return err
		}
		balances, err := repos.BalanceRepo().FindByProductAndLocation(ctx, productID, loc.ID)
		if err != nil {
			return err
		}
		batches, err := s.loadBatches(ctx, repos, balances)
		if err != nil {
			return err
		}
		stock := make([]inventory.BatchStock, 0, len(balances))
		for i := range balances {
			if batch, ok := batches[balances[i].BatchID]; ok {
				stock = append(stock, inventory.BatchStock{Batch: batch, Available: balances[i].Quantity})
			}
		}
		plan, err = s.allocator.Allocate(productID, loc.ID, quantity,
			inventory.AllocateOptions{AllowExpired: allowExpired}, stock)
		return err
	})
	if err != nil {
		return inventory.AllocationPlan{}, err
	}
	return plan, nil
}

func (s *ConsumptionService) resolveLocation(
	ctx context.Context,
	repos TransactionalRepositories,
	saleLocationID *uuid.UUID,
	requested uuid.UUID,
) (*inventory.Location, error) {
	id := requested
	if id == uuid.Nil && saleLocationID != nil {
		id = *saleLocationID
	}
	if id == uuid.Nil {
		loc, err := repos.LocationRepo().FindDefault(ctx)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.ErrNoDefaultLocation
			}
			return nil, err
		}
		return loc, nil
	}
	loc, err := repos.LocationRepo().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve location %s: %w", id, err)
	}
	if !loc.Active {
		return nil, shared.NewDomainError("INACTIVE_LOCATION",
			fmt.Sprintf("Location %s is inactive", loc.Code))
	}
	return loc, nil
}

func (s *ConsumptionService) loadBatches(
	ctx context.Context,
	repos TransactionalRepositories,
	balances []inventory.StockBalance,
) (map[uuid.UUID]*inventory.StockBatch, error) {
	ids := make([]uuid.UUID, 0, len(balances))
	for i := range balances {
		ids = append(ids, balances[i].BatchID)
	}
	batches, err := repos.BatchRepo().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*inventory.StockBatch, len(batches))
	for i := range batches {
		byID[batches[i].ID] = &batches[i]
	}
	return byID, nil
}

func (s *ConsumptionService) existingSaleOuts(ctx context.Context, saleID uuid.UUID) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		moves, err = repos.MoveRepo().FindBySaleAndType(ctx, saleID, inventory.MoveTypeSaleOut)
		return err
	})
	return moves, err
}

func (s *ConsumptionService) cacheHit(ctx context.Context, key string) bool {
	if s.opCache == nil || !s.cacheTTL.Enabled {
		return false
	}
	hit, err := s.opCache.IsProcessed(ctx, key)
	if err != nil {
		s.logger.Debug("idempotency cache lookup failed", zap.Error(err))
		return false
	}
	return hit
}

func (s *ConsumptionService) markProcessed(ctx context.Context, key string) {
	if s.opCache == nil || !s.cacheTTL.Enabled {
		return
	}
	if _, err := s.opCache.MarkProcessed(ctx, key, s.cacheTTL.TTL); err != nil {
		s.logger.Debug("idempotency cache mark failed", zap.Error(err))
	}
}

func (s *ConsumptionService) reportRejection(ctx context.Context, op string, err error) {
	code := rejectionCode(err)
	if code == "" {
		return
	}
	safeObserve(s.logger, func() {
		s.observer.OperationRejected(ctx, op, code)
	})
}

// rejectionCode maps a domain error to its stable code, or "" for
// infrastructure failures that are not domain rejections
func rejectionCode(err error) string {
	switch {
	case errors.Is(err, shared.ErrInsufficientStock):
		return shared.ErrInsufficientStock.Code
	case errors.Is(err, shared.ErrExpiredBatch):
		return shared.ErrExpiredBatch.Code
	case errors.Is(err, shared.ErrOverRefund):
		return shared.ErrOverRefund.Code
	case errors.Is(err, shared.ErrInvalidRefundState):
		return shared.ErrInvalidRefundState.Code
	case errors.Is(err, shared.ErrSaleNotFinalized):
		return shared.ErrSaleNotFinalized.Code
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func consumeOperationKey(saleID uuid.UUID) string {
	return "ledger:consume:" + saleID.String()
}
