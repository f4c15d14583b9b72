package inventory

import (
	"context"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"go.uber.org/zap"
)

// LedgerObserver is the side-channel reporting port for ledger operations:
// counters, structured events and spans. It is strictly best-effort — a
// failing or panicking implementation is logged and ignored, never allowed to
// abort a ledger transaction. Observers are invoked after commit, so they
// only ever see durable state.
type LedgerObserver interface {
	// MovesRecorded reports a committed set of moves for one operation
	// ("consume", "refund_all", "refund_partial", "receive", "adjust", "transfer")
	MovesRecorded(ctx context.Context, operation string, moves []inventory.StockMove)

	// OperationRejected reports a domain rejection (insufficient stock,
	// over-refund, invalid state)
	OperationRejected(ctx context.Context, operation, reason string)

	// ObserveConsumedUnits reports the unit count of one consumption
	ObserveConsumedUnits(ctx context.Context, units int64)
}

// NopLedgerObserver discards all observations
type NopLedgerObserver struct{}

// MovesRecorded implements LedgerObserver
func (NopLedgerObserver) MovesRecorded(context.Context, string, []inventory.StockMove) {}

// OperationRejected implements LedgerObserver
func (NopLedgerObserver) OperationRejected(context.Context, string, string) {}

// ObserveConsumedUnits implements LedgerObserver
func (NopLedgerObserver) ObserveConsumedUnits(context.Context, int64) {}

var _ LedgerObserver = NopLedgerObserver{}

// safeObserve shields ledger results from observer panics
func safeObserve(logger *zap.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("ledger observer panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
