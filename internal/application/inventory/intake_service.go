package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IntakeService is the inbound side of the ledger: purchase receiving, manual
// adjustments and location transfers. It shares the ledger discipline of the
// consumption and refund services — one transaction per call, balance rows
// locked before writing, every balance change paired with a move.
type IntakeService struct {
	scope    TransactionScope
	observer LedgerObserver
	logger   *zap.Logger
}

// NewIntakeService creates a new IntakeService
func NewIntakeService(scope TransactionScope, observer LedgerObserver, logger *zap.Logger) *IntakeService {
	if observer == nil {
		observer = NopLedgerObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{scope: scope, observer: observer, logger: logger}
}

// ReceiveStock creates the batch if needed and records a purchase-in move.
// Receiving the same reference for the same batch and location twice returns
// the previously recorded move.
func (s *IntakeService) ReceiveStock(ctx context.Context, cmd ReceiveStockCommand) (*inventory.StockMove, error) {
	if cmd.Quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Received quantity must be positive")
	}
	if strings.TrimSpace(cmd.Reference) == "" {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Receiving reference is required")
	}

	var recorded *inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		loc, err := repos.LocationRepo().FindByID(ctx, cmd.LocationID)
		if err != nil {
			return fmt.Errorf("resolve location %s: %w", cmd.LocationID, err)
		}
		if !loc.Active {
			return shared.NewDomainError("INACTIVE_LOCATION",
				fmt.Sprintf("Location %s is inactive", loc.Code))
		}

		batch, err := repos.BatchRepo().FindByProductAndNumber(ctx, cmd.ProductID, cmd.BatchNumber)
		if errors.Is(err, shared.ErrNotFound) {
			batch, err = inventory.NewStockBatch(cmd.ProductID, cmd.BatchNumber, cmd.ExpiryDate, cmd.ReceivedDate, cmd.UnitCost)
			if err != nil {
				return err
			}
			if err := repos.BatchRepo().Save(ctx, batch); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		move, err := inventory.NewPurchaseInMove(cmd.ProductID, batch.ID, loc.ID, cmd.Quantity, cmd.ActorID, cmd.Reference)
		if err != nil {
			return err
		}
		if err := repos.MoveRepo().Create(ctx, move); err != nil {
			return err
		}

		bal, err := repos.BalanceRepo().GetOrCreate(ctx, cmd.ProductID, batch.ID, loc.ID)
		if err != nil {
			return err
		}
		if err := bal.Add(cmd.Quantity); err != nil {
			return err
		}
		if err := repos.BalanceRepo().Save(ctx, bal); err != nil {
			return err
		}
		recorded = move
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return s.replayByReference(ctx, cmd)
		}
		return nil, err
	}

	safeObserve(s.logger, func() {
		s.observer.MovesRecorded(ctx, "receive", []inventory.StockMove{*recorded})
	})
	return recorded, nil
}

// AdjustStock records a signed manual correction. A decrease that would push
// the balance negative is rejected.
func (s *IntakeService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (*inventory.StockMove, error) {
	if cmd.Quantity == 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Adjustment quantity cannot be zero")
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "Adjustment reason is required")
	}
	if strings.TrimSpace(cmd.Reference) == "" {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Adjustment reference is required")
	}

	var recorded *inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		balances, err := repos.BalanceRepo().LockByBatchIDs(ctx, cmd.LocationID, []uuid.UUID{cmd.BatchID})
		if err != nil {
			return err
		}
		var bal *inventory.StockBalance
		if len(balances) > 0 {
			bal = &balances[0]
		} else if cmd.Quantity > 0 {
			bal, err = repos.BalanceRepo().GetOrCreate(ctx, cmd.ProductID, cmd.BatchID, cmd.LocationID)
			if err != nil {
				return err
			}
		} else {
			return fmt.Errorf("%w: no stock for batch %s at location %s",
				shared.ErrNegativeBalance, cmd.BatchID, cmd.LocationID)
		}

		move, err := inventory.NewAdjustmentMove(cmd.ProductID, cmd.BatchID, cmd.LocationID, cmd.Quantity, cmd.ActorID, cmd.Reference)
		if err != nil {
			return err
		}
		if err := repos.MoveRepo().Create(ctx, move); err != nil {
			return err
		}
		if err := bal.Apply(cmd.Quantity); err != nil {
			return err
		}
		if err := repos.BalanceRepo().Save(ctx, bal); err != nil {
			return err
		}
		recorded = move
		return nil
	})
	if err != nil {
		return nil, err
	}

	safeObserve(s.logger, func() {
		s.observer.MovesRecorded(ctx, "adjust", []inventory.StockMove{*recorded})
	})
	return recorded, nil
}

// TransferStock moves batch stock between locations as a paired out/in entry
// in one transaction. Source and destination balances are locked in ascending
// location-ID order before either side is written.
func (s *IntakeService) TransferStock(ctx context.Context, cmd TransferStockCommand) ([]inventory.StockMove, error) {
	if cmd.Quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Transfer quantity must be positive")
	}

	var recorded []inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		out, in, err := inventory.NewTransferMoves(
			cmd.ProductID, cmd.BatchID, cmd.FromLocationID, cmd.ToLocationID,
			cmd.Quantity, cmd.ActorID, cmd.Reference,
		)
		if err != nil {
			return err
		}

		first, second := cmd.FromLocationID, cmd.ToLocationID
		if second.String() < first.String() {
			first, second = second, first
		}
		locked := make(map[uuid.UUID]*inventory.StockBalance, 2)
		for _, locID := range []uuid.UUID{first, second} {
			balances, err := repos.BalanceRepo().LockByBatchIDs(ctx, locID, []uuid.UUID{cmd.BatchID})
			if err != nil {
				return err
			}
			if len(balances) > 0 {
				locked[locID] = &balances[0]
			}
		}

		src := locked[cmd.FromLocationID]
		if src == nil || src.Quantity < cmd.Quantity {
			available := int64(0)
			if src != nil {
				available = src.Quantity
			}
			return &inventory.InsufficientStockError{
				ProductID:  cmd.ProductID,
				LocationID: cmd.FromLocationID,
				Requested:  cmd.Quantity,
				Available:  available,
			}
		}
		dst := locked[cmd.ToLocationID]
		if dst == nil {
			var err error
			dst, err = repos.BalanceRepo().GetOrCreate(ctx, cmd.ProductID, cmd.BatchID, cmd.ToLocationID)
			if err != nil {
				return err
			}
		}

		for _, move := range []*inventory.StockMove{out, in} {
			if err := repos.MoveRepo().Create(ctx, move); err != nil {
				return err
			}
		}
		if err := src.Deduct(cmd.Quantity); err != nil {
			return err
		}
		if err := repos.BalanceRepo().Save(ctx, src); err != nil {
			return err
		}
		if err := dst.Add(cmd.Quantity); err != nil {
			return err
		}
		if err := repos.BalanceRepo().Save(ctx, dst); err != nil {
			return err
		}
		recorded = []inventory.StockMove{*out, *in}
		return nil
	})
	if err != nil {
		return nil, err
	}

	safeObserve(s.logger, func() {
		s.observer.MovesRecorded(ctx, "transfer", recorded)
	})
	return recorded, nil
}

// replayByReference re-reads the move a duplicate receiving reference
// collided with
func (s *IntakeService) replayByReference(ctx context.Context, cmd ReceiveStockCommand) (*inventory.StockMove, error) {
	var move *inventory.StockMove
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		batch, err := repos.BatchRepo().FindByProductAndNumber(ctx, cmd.ProductID, cmd.BatchNumber)
		if err != nil {
			return err
		}
		moves, err := repos.MoveRepo().FindByProduct(ctx, cmd.ProductID, 0)
		if err != nil {
			return err
		}
		for i := range moves {
			if moves[i].MoveType == inventory.MoveTypePurchaseIn &&
				moves[i].BatchID == batch.ID &&
				moves[i].LocationID == cmd.LocationID {
				move = &moves[i]
				return nil
			}
		}
		return shared.ErrNotFound
	})
	return move, err
}
