package sales

import (
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// RefundStatus represents the lifecycle state of a refund
type RefundStatus string

const (
	// RefundStatusPending is a refund awaiting ledger reversal
	RefundStatusPending RefundStatus = "PENDING"
	// RefundStatusCompleted is a refund whose reversal moves are committed
	RefundStatusCompleted RefundStatus = "COMPLETED"
)

// Refund is a partial-refund declaration against a finalized sale. Its lines
// name sale lines and quantities; the ledger maps them back onto the original
// batch allocations.
type Refund struct {
	shared.BaseEntity
	SaleID uuid.UUID    `gorm:"type:uuid;not null;index"`
	Number string       `gorm:"type:varchar(50);not null;uniqueIndex"`
	Status RefundStatus `gorm:"type:varchar(20);not null"`
	Lines  []RefundLine `gorm:"foreignKey:RefundID"`
}

// TableName returns the table name for GORM
func (Refund) TableName() string {
	return "refunds"
}

// RefundLine declares how much of one sale line to refund. BatchID optionally
// pins the reversal to a single original allocation; when nil the quantity is
// distributed across the line's allocations.
type RefundLine struct {
	shared.BaseEntity
	RefundID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	SaleLineID uuid.UUID  `gorm:"type:uuid;not null"`
	Quantity   int64      `gorm:"not null"`
	BatchID    *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (RefundLine) TableName() string {
	return "refund_lines"
}
