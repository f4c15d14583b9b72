package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/sales"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefundService reverses previously recorded consumption, fully or against
// explicit partial-refund lines. Reversals return stock to the exact
// (product, batch, location) it was drawn from — there is no re-allocation.
// Running reversal totals are checked per source move, so a single allocation
// can never be reversed beyond what it consumed, across any mix of full and
// partial refunds.
type RefundService struct {
	scope    TransactionScope
	observer LedgerObserver
	opCache  shared.IdempotencyStore
	cacheTTL shared.IdempotencyConfig
	logger   *zap.Logger
}

// NewRefundService creates a new RefundService
func NewRefundService(scope TransactionScope, observer LedgerObserver, logger *zap.Logger) *RefundService {
	if observer == nil {
		observer = NopLedgerObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefundService{
		scope:    scope,
		observer: observer,
		cacheTTL: shared.DefaultIdempotencyConfig(),
		logger:   logger,
	}
}

// SetIdempotencyCache enables the best-effort duplicate fast path
func (s *RefundService) SetIdempotencyCache(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) {
	s.opCache = store
	s.cacheTTL = cfg
}

// RefundAll reverses every sale-out move tied to the sale, restoring each
// batch balance exactly. Allocations already drawn down by partial refunds
// are reversed only for their remaining quantity. Replaying a completed full
// reversal returns the previously created full-reversal moves; quantities
// returned earlier through partial refunds stay with their own refund.
func (s *RefundService) RefundAll(ctx context.Context, saleID, actorID uuid.UUID) ([]inventory.StockMove, error) {
	if saleID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SALE", "Sale ID cannot be empty")
	}
	if actorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACTOR", "Actor ID cannot be empty")
	}

	opKey := "ledger:refund_all:" + saleID.String()
	if s.cacheHit(ctx, opKey) {
		return s.existingRefundIns(ctx, saleID)
	}

	var moves []inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		sale, err := repos.SaleRepo().LockByID(ctx, saleID)
		if err != nil {
			return fmt.Errorf("lock sale %s: %w", saleID, err)
		}
		if !sale.IsFinalized() {
			return fmt.Errorf("%w: sale %s is %s", shared.ErrInvalidRefundState, sale.Number, sale.Status)
		}

		saleOuts, err := repos.MoveRepo().FindBySaleAndType(ctx, saleID, inventory.MoveTypeSaleOut)
		if err != nil {
			return err
		}
		if len(saleOuts) == 0 {
			moves = []inventory.StockMove{}
			return nil
		}

		sourceIDs := make([]uuid.UUID, len(saleOuts))
		for i := range saleOuts {
			sourceIDs[i] = saleOuts[i].ID
		}
		reversed, err := repos.MoveRepo().SumReversedBySources(ctx, sourceIDs)
		if err != nil {
			return err
		}

		type target struct {
			source    *inventory.StockMove
			remaining int64
		}
		targets := make([]target, 0, len(saleOuts))
		for i := range saleOuts {
			remaining := inventory.RemainingReversible(&saleOuts[i], reversed[saleOuts[i].ID])
			if remaining > 0 {
				targets = append(targets, target{source: &saleOuts[i], remaining: remaining})
			}
		}
		if len(targets) == 0 {
			// Everything already reversed: idempotent replay.
			existing, err := repos.MoveRepo().FindBySaleAndType(ctx, saleID, inventory.MoveTypeRefundIn)
			if err != nil {
				return err
			}
			moves = fullReversals(existing)
			return nil
		}

		balances, err := s.lockBalancesForMoves(ctx, repos, saleOuts)
		if err != nil {
			return err
		}

		for _, t := range targets {
			move, err := inventory.NewFullReversalMove(t.source, t.remaining, actorID)
			if err != nil {
				return err
			}
			if err := repos.MoveRepo().Create(ctx, move); err != nil {
				return err
			}
			bal, ok := balances[balanceKey{t.source.BatchID, t.source.LocationID}]
			if !ok {
				return fmt.Errorf("no balance row for batch %s at location %s",
					t.source.BatchID, t.source.LocationID)
			}
			if err := bal.Add(t.remaining); err != nil {
				return err
			}
			if err := repos.BalanceRepo().Save(ctx, bal); err != nil {
				return err
			}
			moves = append(moves, *move)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) || errors.Is(err, shared.ErrIdempotencyConflict) {
			s.logger.Info("refund_all replayed concurrently", zap.String("sale_id", saleID.String()))
			return s.existingRefundIns(ctx, saleID)
		}
		s.reportRejection(ctx, "refund_all", err)
		return nil, err
	}

	s.markProcessed(ctx, opKey)
	if len(moves) > 0 {
		safeObserve(s.logger, func() {
			s.observer.MovesRecorded(ctx, "refund_all", moves)
		})
	}
	return moves, nil
}

// RefundPartial reverses consumption against the refund's declared lines.
// Each refund line names a sale line and a quantity; the quantity is
// distributed across that line's original allocations in reverse FEFO order
// (the latest-expiry draw returns first), or pinned to a single batch when
// the line says so. Replaying a completed refund returns the previously
// created moves.
func (s *RefundService) RefundPartial(ctx context.Context, saleID, refundID, actorID uuid.UUID) ([]inventory.StockMove, error) {
	if saleID == uuid.Nil || refundID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Sale and refund IDs are required")
	}
	if actorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACTOR", "Actor ID cannot be empty")
	}

	opKey := "ledger:refund:" + refundID.String()
	if s.cacheHit(ctx, opKey) {
		return s.existingRefundMoves(ctx, refundID)
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
			return fmt.Errorf("%w: sale %s is %s", shared.ErrInvalidRefundState, sale.Number, sale.Status)
		}

		refund, err := repos.RefundRepo().FindByID(ctx, refundID)
		if err != nil {
			return fmt.Errorf("load refund %s: %w", refundID, err)
		}
		if refund.SaleID != saleID {
			return shared.NewDomainError("INVALID_REFUND",
				fmt.Sprintf("Refund %s does not belong to sale %s", refund.Number, sale.Number))
		}

		existing, err := repos.MoveRepo().FindByRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			moves = existing
			replayed = true
			return nil
		}

		planned, err := s.planPartialReversals(ctx, repos, refund)
		if err != nil {
			return err
		}

		allSources := make([]inventory.StockMove, 0, len(planned))
		for _, p := range planned {
			allSources = append(allSources, *p.source)
		}
		balances, err := s.lockBalancesForMoves(ctx, repos, allSources)
		if err != nil {
			return err
		}

		for _, p := range planned {
			dup, err := repos.MoveRepo().ExistsByRefundAndSource(ctx, refundID, p.source.ID)
			if err != nil {
				return err
			}
			if dup {
				return shared.ErrIdempotencyConflict
			}
			move, err := inventory.NewPartialReversalMove(p.source, refundID, p.quantity, actorID)
			if err != nil {
				return err
			}
			if err := repos.MoveRepo().Create(ctx, move); err != nil {
				return err
			}
			bal := balances[balanceKey{p.source.BatchID, p.source.LocationID}]
			if bal == nil {
				return fmt.Errorf("no balance row for batch %s at location %s",
					p.source.BatchID, p.source.LocationID)
			}
			if err := bal.Add(p.quantity); err != nil {
				return err
			}
			if err := repos.BalanceRepo().Save(ctx, bal); err != nil {
				return err
			}
			moves = append(moves, *move)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) || errors.Is(err, shared.ErrIdempotencyConflict) {
			s.logger.Info("refund_partial replayed concurrently",
				zap.String("refund_id", refundID.String()))
			return s.existingRefundMoves(ctx, refundID)
		}
		s.reportRejection(ctx, "refund_partial", err)
		return nil, err
	}

	s.markProcessed(ctx, opKey)
	if !replayed && len(moves) > 0 {
		safeObserve(s.logger, func() {
			s.observer.MovesRecorded(ctx, "refund_partial", moves)
		})
	}
	return moves, nil
}

type plannedReversal struct {
	source   *inventory.StockMove
	quantity int64
}

// planPartialReversals maps each refund line onto the original sale-out moves
// and decides how much to draw back from each, honoring running reversal
// totals. Lines naming the same sale line accumulate: draws are tracked
// across the whole refund and merged per source move, so one refund writes at
// most one reversal per allocation.
func (s *RefundService) planPartialReversals(
	ctx context.Context,
	repos TransactionalRepositories,
	refund *sales.Refund,
) ([]plannedReversal, error) {
	var planned []plannedReversal
	bySource := make(map[uuid.UUID]int)
	drawn := make(map[uuid.UUID]int64)
	for _, line := range refund.Lines {
		if line.Quantity <= 0 {
			return nil, shared.NewDomainError("INVALID_QUANTITY", "Refund line quantity must be positive")
		}

		sources, err := repos.MoveRepo().FindBySaleLineAndType(ctx, line.SaleLineID, inventory.MoveTypeSaleOut)
		if err != nil {
			return nil, err
		}
		if line.BatchID != nil {
			filtered := sources[:0]
			for i := range sources {
				if sources[i].BatchID == *line.BatchID {
					filtered = append(filtered, sources[i])
				}
			}
			sources = filtered
		}
		if len(sources) == 0 {
			return nil, shared.NewDomainError("INVALID_REFUND_LINE",
				fmt.Sprintf("No consumption recorded for sale line %s", line.SaleLineID))
		}

		sourceIDs := make([]uuid.UUID, len(sources))
		for i := range sources {
			sourceIDs[i] = sources[i].ID
		}
		reversed, err := repos.MoveRepo().SumReversedBySources(ctx, sourceIDs)
		if err != nil {
			return nil, err
		}

		// Reverse FEFO: walk the allocations backwards so the stock that was
		// pulled forward last returns first.
		remaining := line.Quantity
		for i := len(sources) - 1; i >= 0 && remaining > 0; i-- {
			src := &sources[i]
			avail := inventory.RemainingReversible(src, reversed[src.ID]) - drawn[src.ID]
			if avail <= 0 {
				continue
			}
			take := avail
			if take > remaining {
				take = remaining
			}
			drawn[src.ID] += take
			if pos, ok := bySource[src.ID]; ok {
				planned[pos].quantity += take
			} else {
				bySource[src.ID] = len(planned)
				planned = append(planned, plannedReversal{source: src, quantity: take})
			}
			remaining -= take
		}
		if remaining > 0 {
			// Refundable is what this line could see: the open quantity now
			// plus whatever the line itself already took.
			refundable := line.Quantity - remaining
			for i := range sources {
				if free := inventory.RemainingReversible(&sources[i], reversed[sources[i].ID]) - drawn[sources[i].ID]; free > 0 {
					refundable += free
				}
			}
			return nil, &inventory.OverRefundError{
				SaleLineID: line.SaleLineID,
				Requested:  line.Quantity,
				Refundable: refundable,
			}
		}
	}
	return planned, nil
}

type balanceKey struct {
	batchID    uuid.UUID
	locationID uuid.UUID
}

// lockBalancesForMoves locks the balance rows behind a set of moves, grouped
// by location, batches in ascending ID order within each location.
func (s *RefundService) lockBalancesForMoves(
	ctx context.Context,
	repos TransactionalRepositories,
	moves []inventory.StockMove,
) (map[balanceKey]*inventory.StockBalance, error) {
	byLocation := make(map[uuid.UUID][]uuid.UUID)
	seen := make(map[balanceKey]struct{})
	for i := range moves {
		key := balanceKey{moves[i].BatchID, moves[i].LocationID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		byLocation[moves[i].LocationID] = append(byLocation[moves[i].LocationID], moves[i].BatchID)
	}

	locationIDs := make([]uuid.UUID, 0, len(byLocation))
	for id := range byLocation {
		locationIDs = append(locationIDs, id)
	}
	sort.Slice(locationIDs, func(i, j int) bool {
		return locationIDs[i].String() < locationIDs[j].String()
	})

	out := make(map[balanceKey]*inventory.StockBalance, len(seen))
	for _, locID := range locationIDs {
		balances, err := repos.BalanceRepo().LockByBatchIDs(ctx, locID, byLocation[locID])
		if err != nil {
			return nil, fmt.Errorf("lock balances at location %s: %w", locID, err)
		}
		for i := range balances {
			out[balanceKey{balances[i].BatchID, balances[i].LocationID}] = &balances[i]
		}
	}
	return out, nil
}

// fullReversals keeps only the moves written by RefundAll (ReversedMoveID
// set), dropping refund-ins that belong to declared partial refunds.
func fullReversals(moves []inventory.StockMove) []inventory.StockMove {
	out := make([]inventory.StockMove, 0, len(moves))
	for i := range moves {
		if moves[i].ReversedMoveID != nil {
			out = append(out, moves[i])
		}
	}
	return out
}

func (s *RefundService) existingRefundIns(ctx context.Context, saleID uuid.UUID) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		existing, err := repos.MoveRepo().FindBySaleAndType(ctx, saleID, inventory.MoveTypeRefundIn)
		if err != nil {
			return err
		}
		moves = fullReversals(existing)
		return nil
	})
	return moves, err
}

func (s *RefundService) existingRefundMoves(ctx context.Context, refundID uuid.UUID) ([]inventory.StockMove, error) {
	var moves []inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		moves, err = repos.MoveRepo().FindByRefund(ctx, refundID)
		return err
	})
	return moves, err
}

func (s *RefundService) cacheHit(ctx context.Context, key string) bool {
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

func (s *RefundService) markProcessed(ctx context.Context, key string) {
	if s.opCache == nil || !s.cacheTTL.Enabled {
		return
	}
	if _, err := s.opCache.MarkProcessed(ctx, key, s.cacheTTL.TTL); err != nil {
		s.logger.Debug("idempotency cache mark failed", zap.Error(err))
	}
}

func (s *RefundService) reportRejection(ctx context.Context, op string, err error) {
	code := rejectionCode(err)
	if code == "" {
		return
	}
	safeObserve(s.logger, func() {
		s.observer.OperationRejected(ctx, op, code)
	})
}
