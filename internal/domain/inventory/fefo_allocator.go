package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BatchStock pairs a batch with its available balance at one location. It is
// the read-only snapshot the allocator plans against; callers are responsible
// for having locked the underlying balance rows first.
type BatchStock struct {
	Batch     *StockBatch
	Available int64
}

// BatchAllocation is one planned draw from a batch
type BatchAllocation struct {
	Batch    *StockBatch
	Quantity int64
}

// AllocationPlan is the ordered result of planning a consumption. It performs
// no writes; the consumption service turns it into moves and balance updates.
type AllocationPlan struct {
	ProductID   uuid.UUID
	LocationID  uuid.UUID
	Allocations []BatchAllocation
	Total       int64
}

// AllocateOptions tunes eligibility rules for a single planning call
type AllocateOptions struct {
	// AllowExpired permits drawing from batches past their expiry date
	AllowExpired bool
	// PreferredBatchID, when set, is drawn from first; the remainder follows
	// expiry order. An expired preferred batch without AllowExpired is an
	// ExpiredBatch error.
	PreferredBatchID *uuid.UUID
}

// InsufficientStockError reports a shortfall between requested quantity and
// eligible supply
type InsufficientStockError struct {
	ProductID  uuid.UUID
	LocationID uuid.UUID
	Requested  int64
	Available  int64
}

// Error implements the error interface
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s at location %s: requested %d, available %d",
		e.ProductID, e.LocationID, e.Requested, e.Available)
}

// Is allows errors.Is(err, shared.ErrInsufficientStock)
func (e *InsufficientStockError) Is(target error) bool {
	return target == shared.ErrInsufficientStock
}

// Shortfall returns the number of units that could not be covered
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// FEFOAllocator plans consumptions nearest-expiry first. Batches with no
// expiry date sort last; ties break by received date, then batch ID, so a
// given snapshot always yields the same plan.
type FEFOAllocator struct {
	now func() time.Time
}

// NewFEFOAllocator creates a new FEFO allocator
func NewFEFOAllocator() *FEFOAllocator {
	return &FEFOAllocator{now: time.Now}
}

// NewFEFOAllocatorAt creates an allocator with a fixed clock, for tests
func NewFEFOAllocatorAt(now func() time.Time) *FEFOAllocator {
	return &FEFOAllocator{now: now}
}

// Allocate maps (product, location, quantity) to an ordered set of
// (batch, quantity) draws. Requesting a non-positive quantity is a caller bug.
func (a *FEFOAllocator) Allocate(
	productID, locationID uuid.UUID,
	quantity int64,
	opts AllocateOptions,
	stock []BatchStock,
) (AllocationPlan, error) {
	plan := AllocationPlan{ProductID: productID, LocationID: locationID}
	if quantity <= 0 {
		return plan, shared.NewDomainError("INVALID_QUANTITY", "Allocation quantity must be positive")
	}

	now := a.now()
	eligible := make([]BatchStock, 0, len(stock))
	for _, bs := range stock {
		if bs.Batch == nil || bs.Batch.ProductID != productID || bs.Available <= 0 {
			continue
		}
		if bs.Batch.IsExpired(now) && !opts.AllowExpired {
			if opts.PreferredBatchID != nil && bs.Batch.ID == *opts.PreferredBatchID {
				return plan, fmt.Errorf("%w: batch %s expired %s",
					shared.ErrExpiredBatch, bs.Batch.BatchNumber, bs.Batch.ExpiryDate.Format("2006-01-02"))
			}
			continue
		}
		eligible = append(eligible, bs)
	}

	sort.Slice(eligible, func(i, j int) bool {
		bi, bj := eligible[i].Batch, eligible[j].Batch
		if opts.PreferredBatchID != nil {
			if bi.ID == *opts.PreferredBatchID {
				return true
			}
			if bj.ID == *opts.PreferredBatchID {
				return false
			}
		}
		switch {
		case bi.ExpiryDate == nil && bj.ExpiryDate == nil:
			// fall through to received date
		case bi.ExpiryDate == nil:
			return false
		case bj.ExpiryDate == nil:
			return true
		case !bi.ExpiryDate.Equal(*bj.ExpiryDate):
			return bi.ExpiryDate.Before(*bj.ExpiryDate)
		}
		if !bi.ReceivedDate.Equal(bj.ReceivedDate) {
			return bi.ReceivedDate.Before(bj.ReceivedDate)
		}
		return bi.ID.String() < bj.ID.String()
	})

	remaining := quantity
	for _, bs := range eligible {
		if remaining == 0 {
			break
		}
		take := bs.Available
		if take > remaining {
			take = remaining
		}
		plan.Allocations = append(plan.Allocations, BatchAllocation{Batch: bs.Batch, Quantity: take})
		plan.Total += take
		remaining -= take
	}

	if remaining > 0 {
		return AllocationPlan{ProductID: productID, LocationID: locationID}, &InsufficientStockError{
			ProductID:  productID,
			LocationID: locationID,
			Requested:  quantity,
			Available:  quantity - remaining,
		}
	}
	return plan, nil
}
