// Package sales holds the sale and refund records owned by the upstream sale
// workflow. The ledger core reads and cross-references them; it never
// transitions their state.
package sales

import (
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleStatus represents the lifecycle state of a sale
type SaleStatus string

const (
	// SaleStatusDraft is an open, editable sale
	SaleStatusDraft SaleStatus = "DRAFT"
	// SaleStatusFinalized is the terminal paid state; only finalized sales
	// consume stock and only finalized sales can be refunded
	SaleStatusFinalized SaleStatus = "FINALIZED"
	// SaleStatusCancelled is a voided sale that never touched stock
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// String returns the string representation of SaleStatus
func (s SaleStatus) String() string {
	return string(s)
}

// Sale is a point-of-sale transaction record
type Sale struct {
	shared.BaseEntity
	Number     string     `gorm:"type:varchar(50);not null;uniqueIndex"`
	Status     SaleStatus `gorm:"type:varchar(20);not null;index"`
	LocationID *uuid.UUID `gorm:"type:uuid"`
	Lines      []SaleLine `gorm:"foreignKey:SaleID"`
}

// TableName returns the table name for GORM
func (Sale) TableName() string {
	return "sales"
}

// IsFinalized returns true if the sale is in its terminal paid state
func (s *Sale) IsFinalized() bool {
	return s.Status == SaleStatusFinalized
}

// StockableLines returns the lines that consume stock, in line order
func (s *Sale) StockableLines() []SaleLine {
	lines := make([]SaleLine, 0, len(s.Lines))
	for _, l := range s.Lines {
		if l.Stockable {
			lines = append(lines, l)
		}
	}
	return lines
}

// LineByID returns the line with the given ID, or nil
func (s *Sale) LineByID(id uuid.UUID) *SaleLine {
	for i := range s.Lines {
		if s.Lines[i].ID == id {
			return &s.Lines[i]
		}
	}
	return nil
}

// SaleLine is one product line on a sale. Services and clinical procedures
// are non-stockable lines and never reach the ledger.
type SaleLine struct {
	shared.BaseEntity
	SaleID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo    int             `gorm:"not null"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	Quantity  int64           `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Stockable bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (SaleLine) TableName() string {
	return "sale_lines"
}
