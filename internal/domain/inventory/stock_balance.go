package inventory

import (
	"fmt"
	"time"

	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// StockBalance is the materialized on-hand quantity for one
// (product, batch, location) key. It is a pure projection of the move log:
// at every committed state the quantity equals the sum of all move quantities
// for the same key. Only the consumption, refund and intake services may
// write balance rows.
type StockBalance struct {
	shared.BaseEntity
	ProductID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_balance_key,priority:1"`
	BatchID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_balance_key,priority:2"`
	LocationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_balance_key,priority:3"`
	Quantity   int64     `gorm:"not null;default:0"`
	Version    int       `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (StockBalance) TableName() string {
	return "stock_balances"
}

// NewStockBalance creates a zero balance row for a (product, batch, location) key
func NewStockBalance(productID, batchID, locationID uuid.UUID) (*StockBalance, error) {
	if productID == uuid.Nil || batchID == uuid.Nil || locationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BALANCE_KEY", "Product, batch and location IDs are required")
	}
	return &StockBalance{
		BaseEntity: shared.NewBaseEntity(),
		ProductID:  productID,
		BatchID:    batchID,
		LocationID: locationID,
		Quantity:   0,
		Version:    1,
	}, nil
}

// Deduct removes quantity from the balance. The balance can never go negative;
// callers are expected to have planned against a locked row.
func (b *StockBalance) Deduct(quantity int64) error {
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Deduct quantity must be positive")
	}
	if b.Quantity < quantity {
		return fmt.Errorf("%w: batch %s has %d, deducting %d",
			shared.ErrNegativeBalance, b.BatchID, b.Quantity, quantity)
	}
	b.Quantity -= quantity
	b.Version++
	b.UpdatedAt = time.Now()
	return nil
}

// Add returns quantity to the balance (refunds, receiving, adjustments in)
func (b *StockBalance) Add(quantity int64) error {
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Add quantity must be positive")
	}
	b.Quantity += quantity
	b.Version++
	b.UpdatedAt = time.Now()
	return nil
}

// Apply applies a signed move quantity to the balance
func (b *StockBalance) Apply(signedQuantity int64) error {
	if signedQuantity > 0 {
		return b.Add(signedQuantity)
	}
	return b.Deduct(-signedQuantity)
}

// HasStock returns true if the balance has available quantity
func (b *StockBalance) HasStock() bool {
	return b.Quantity > 0
}
