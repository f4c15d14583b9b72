package inventory

import (
	"fmt"

	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OverRefundError reports an attempt to reverse more than was originally
// consumed from a sale line's allocations
type OverRefundError struct {
	SaleLineID uuid.UUID
	Requested  int64
	Refundable int64
}

// Error implements the error interface
func (e *OverRefundError) Error() string {
	return fmt.Sprintf("over-refund on sale line %s: requested %d, refundable %d",
		e.SaleLineID, e.Requested, e.Refundable)
}

// Is allows errors.Is(err, shared.ErrOverRefund)
func (e *OverRefundError) Is(target error) bool {
	return target == shared.ErrOverRefund
}

// RemainingReversible returns how much of a sale-out move is still open for
// reversal given the total already reversed against it. Reversal totals can
// never exceed the original consumption, so the result is non-negative.
func RemainingReversible(source *StockMove, alreadyReversed int64) int64 {
	remaining := source.AbsQuantity() - alreadyReversed
	if remaining < 0 {
		return 0
	}
	return remaining
}
