package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStockMetricsProvider answers the aggregate stock queries the telemetry
// gauges poll on an interval. Reads are approximate by design: they run
// outside the ledger transaction scope.
type GormStockMetricsProvider struct {
	db *gorm.DB
}

// NewGormStockMetricsProvider creates a new GormStockMetricsProvider
func NewGormStockMetricsProvider(db *gorm.DB) *GormStockMetricsProvider {
	return &GormStockMetricsProvider{db: db}
}

// CountExpiringBatches returns the number of batches whose expiry date falls
// within the warning window and that still have stock on hand
func (p *GormStockMetricsProvider) CountExpiringBatches(ctx context.Context, withinDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, withinDays)

	var count int64
	err := p.db.WithContext(ctx).
		Table("stock_batches").
		Joins("JOIN stock_balances ON stock_balances.batch_id = stock_batches.id").
		Where("stock_batches.expiry_date IS NOT NULL AND stock_batches.expiry_date <= ?", cutoff).
		Where("stock_balances.quantity > 0").
		Distinct("stock_batches.id").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// OnHandByLocation returns the total on-hand quantity per location
func (p *GormStockMetricsProvider) OnHandByLocation(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []struct {
		LocationID uuid.UUID
		Total      int64
	}
	err := p.db.WithContext(ctx).
		Table("stock_balances").
		Select("location_id, COALESCE(SUM(quantity), 0) AS total").
		Group("location_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		out[row.LocationID] = row.Total
	}
	return out, nil
}
