package sales

import (
	"context"

	"github.com/google/uuid"
)

// SaleRepository defines the reads the ledger core needs from the sales domain
type SaleRepository interface {
	// FindByID finds a sale with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Sale, error)

	// LockByID locks the sale row (SELECT ... FOR UPDATE) and returns it with
	// its lines. Both ledger services take this lock first, which serializes
	// competing operations on the same sale.
	LockByID(ctx context.Context, id uuid.UUID) (*Sale, error)
}

// RefundRepository defines the reads the ledger core needs for refunds
type RefundRepository interface {
	// FindByID finds a refund with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Refund, error)
}
