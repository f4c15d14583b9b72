package inventory

import (
	"strings"
	"time"

	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockBatch represents an independently tracked lot of a product with its own
// expiry date. On-hand quantity is not stored here: it lives in the balance
// rows keyed by (product, batch, location).
type StockBatch struct {
	shared.BaseEntity
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_batch_product_number,priority:1"`
	BatchNumber  string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_batch_product_number,priority:2"`
	ExpiryDate   *time.Time      `gorm:"type:timestamptz;index"`
	ReceivedDate time.Time       `gorm:"type:timestamptz;not null"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (StockBatch) TableName() string {
	return "stock_batches"
}

// NewStockBatch creates a new stock batch
func NewStockBatch(
	productID uuid.UUID,
	batchNumber string,
	expiryDate *time.Time,
	receivedDate time.Time,
	unitCost decimal.Decimal,
) (*StockBatch, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if strings.TrimSpace(batchNumber) == "" {
		return nil, shared.NewDomainError("INVALID_BATCH_NUMBER", "Batch number cannot be empty")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}
	if receivedDate.IsZero() {
		receivedDate = time.Now()
	}
	return &StockBatch{
		BaseEntity:   shared.NewBaseEntity(),
		ProductID:    productID,
		BatchNumber:  batchNumber,
		ExpiryDate:   expiryDate,
		ReceivedDate: receivedDate,
		UnitCost:     unitCost,
	}, nil
}

// IsExpired returns true if the batch has expired at the given time
func (b *StockBatch) IsExpired(at time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return !b.ExpiryDate.After(at)
}

// WillExpireWithin returns true if the batch expires within the given duration
func (b *StockBatch) WillExpireWithin(duration time.Duration) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(time.Now().Add(duration))
}

// DaysUntilExpiry returns the number of days until expiry, -1 if no expiry date
func (b *StockBatch) DaysUntilExpiry() int {
	if b.ExpiryDate == nil {
		return -1
	}
	return int(time.Until(*b.ExpiryDate).Hours() / 24)
}
