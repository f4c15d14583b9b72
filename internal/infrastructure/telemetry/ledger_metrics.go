// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	appinv "github.com/clinicpos/backend/internal/application/inventory"
	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics implements the application LedgerObserver on OpenTelemetry
// instruments. It counts committed moves and domain rejections per operation,
// tracks consumed units, and periodically collects stock-health gauges
// (expiring batches, on-hand per location) from the database.
type LedgerMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	movesRecordedTotal      *Counter
	operationsRejectedTotal *Counter
	consumedUnitsTotal      *Counter

	// Gauge metrics (point-in-time values)
	expiringBatchCount *Gauge
	onHandQuantity     *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	stockProvider StockMetricsProvider
}

// StockMetricsProvider provides stock data for periodic gauge collection.
// This interface lets the telemetry layer query ledger state without
// depending on the persistence layer directly.
type StockMetricsProvider interface {
	// CountExpiringBatches returns the number of batches expiring within the window
	CountExpiringBatches(ctx context.Context, withinDays int) (int64, error)

	// OnHandByLocation returns total on-hand quantity per location
	OnHandByLocation(ctx context.Context) (map[uuid.UUID]int64, error)
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter             metric.Meter
	Logger            *zap.Logger
	CollectInterval   time.Duration // Default: 5 minutes
	ExpiryWarningDays int           // Default: 30
	StockProvider     StockMetricsProvider
}

// NewLedgerMetrics creates a new LedgerMetrics instance.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		stockProvider: cfg.StockProvider,
	}

	var err error

	lm.movesRecordedTotal, err = NewCounter(
		cfg.Meter,
		"ledger_moves_recorded_total",
		"Total number of ledger moves committed",
		"{moves}",
	)
	if err != nil {
		return nil, err
	}

	lm.operationsRejectedTotal, err = NewCounter(
		cfg.Meter,
		"ledger_operations_rejected_total",
		"Total number of ledger operations rejected by domain rules",
		"{operations}",
	)
	if err != nil {
		return nil, err
	}

	lm.consumedUnitsTotal, err = NewCounter(
		cfg.Meter,
		"ledger_consumed_units_total",
		"Total units consumed by finalized sales",
		"{units}",
	)
	if err != nil {
		return nil, err
	}

	lm.expiringBatchCount, err = NewGauge(
		cfg.Meter,
		"ledger_expiring_batch_count",
		"Number of batches expiring within the warning window",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	lm.onHandQuantity, err = NewGauge(
		cfg.Meter,
		"ledger_on_hand_quantity",
		"Current on-hand stock quantity per location",
		"{units}",
	)
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// MovesRecorded implements appinv.LedgerObserver. Called after commit, so the
// moves it sees are durable.
func (lm *LedgerMetrics) MovesRecorded(ctx context.Context, operation string, moves []inventory.StockMove) {
	for _, move := range moves {
		lm.movesRecordedTotal.Inc(ctx,
			AttrOperation.String(operation),
			AttrMoveType.String(move.MoveType.String()),
		)
	}
}

// OperationRejected implements appinv.LedgerObserver
func (lm *LedgerMetrics) OperationRejected(ctx context.Context, operation, reason string) {
	lm.operationsRejectedTotal.Inc(ctx,
		AttrOperation.String(operation),
		AttrRejectReason.String(reason),
	)
}

// ObserveConsumedUnits implements appinv.LedgerObserver
func (lm *LedgerMetrics) ObserveConsumedUnits(ctx context.Context, units int64) {
	lm.consumedUnitsTotal.Add(ctx, units)
}

// StartPeriodicCollection starts periodic collection of stock-health gauges.
// Non-blocking; use Stop() to stop collection.
func (lm *LedgerMetrics) StartPeriodicCollection(ctx context.Context, expiryWarningDays int, interval time.Duration) {
	lm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		if expiryWarningDays <= 0 {
			expiryWarningDays = 30
		}

		go lm.runPeriodicCollection(ctx, expiryWarningDays, interval)
	})
}

func (lm *LedgerMetrics) runPeriodicCollection(ctx context.Context, expiryWarningDays int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	lm.collectStockMetrics(ctx, expiryWarningDays)

	for {
		select {
		case <-lm.stopChan:
			lm.logger.Info("Stopping periodic ledger metrics collection")
			return
		case <-ctx.Done():
			lm.logger.Info("Context cancelled, stopping periodic ledger metrics collection")
			return
		case <-ticker.C:
			lm.collectStockMetrics(ctx, expiryWarningDays)
		}
	}
}

func (lm *LedgerMetrics) collectStockMetrics(ctx context.Context, expiryWarningDays int) {
	if lm.stockProvider == nil {
		lm.logger.Debug("No stock provider configured, skipping stock metrics collection")
		return
	}

	expiring, err := lm.stockProvider.CountExpiringBatches(ctx, expiryWarningDays)
	if err != nil {
		lm.logger.Warn("Failed to count expiring batches", zap.Error(err))
	} else {
		lm.expiringBatchCount.Record(ctx, expiring)
	}

	onHand, err := lm.stockProvider.OnHandByLocation(ctx)
	if err != nil {
		lm.logger.Warn("Failed to collect on-hand quantities", zap.Error(err))
	} else {
		for locationID, quantity := range onHand {
			lm.onHandQuantity.Record(ctx, quantity,
				AttrLocationID.String(locationID.String()),
			)
		}
	}
}

// Stop stops the periodic collection.
func (lm *LedgerMetrics) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// Ensure LedgerMetrics implements the application observer port
var _ appinv.LedgerObserver = (*LedgerMetrics)(nil)
