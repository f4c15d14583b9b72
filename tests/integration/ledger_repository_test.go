package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/clinicpos/backend/internal/infrastructure/persistence"
)

// TestStockMoveRepository_Integration exercises the move log against a real
// PostgreSQL instance: the unique indexes and the append-only trigger are
// storage-level guarantees that sqlmock cannot verify.
func TestStockMoveRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	tdb.CleanTables()

	ctx := context.Background()
	repo := persistence.NewGormStockMoveRepository(tdb.DB)

	actorID := uuid.New()
	productID := uuid.New()
	locationID := uuid.New()
	batchID := uuid.New()
	tdb.CreateTestLocation(locationID)
	tdb.CreateTestBatch(batchID, productID, nil)

	t.Run("replayed idempotency key collapses onto the first row", func(t *testing.T) {
		first, err := inventory.NewPurchaseInMove(productID, batchID, locationID, 10, actorID, "PO-7001")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, first))

		// Same reference, fresh entity ID: must collide on the key index.
		second, err := inventory.NewPurchaseInMove(productID, batchID, locationID, 10, actorID, "PO-7001")
		require.NoError(t, err)
		err = repo.Create(ctx, second)
		require.ErrorIs(t, err, shared.ErrAlreadyExists)

		total, err := repo.SumByKey(ctx, productID, batchID, locationID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), total)
	})

	t.Run("second reversal for the same refund and source is rejected", func(t *testing.T) {
		saleID := uuid.New()
		saleLineID := uuid.New()
		refundID := uuid.New()

		source, err := inventory.NewSaleOutMove(productID, batchID, locationID, 4, saleID, saleLineID, actorID)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, source))

		reversal, err := inventory.NewPartialReversalMove(source, refundID, 2, actorID)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, reversal))

		// A retry would normally collide on the idempotency key; force a
		// distinct key so the (refund_id, source_move_id) index is what fires.
		retry, err := inventory.NewPartialReversalMove(source, refundID, 2, actorID)
		require.NoError(t, err)
		retry.IdempotencyKey = "manual-retry-" + uuid.NewString()
		err = repo.Create(ctx, retry)
		require.ErrorIs(t, err, shared.ErrAlreadyExists)

		exists, err := repo.ExistsByRefundAndSource(ctx, refundID, source.ID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("recorded moves cannot be updated or deleted", func(t *testing.T) {
		move, err := inventory.NewPurchaseInMove(productID, batchID, locationID, 5, actorID, "PO-7002")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, move))

		err = tdb.DB.Exec("UPDATE stock_moves SET quantity = 999 WHERE id = ?", move.ID.String()).Error
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append-only")

		err = tdb.DB.Exec("DELETE FROM stock_moves WHERE id = ?", move.ID.String()).Error
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append-only")

		found, err := repo.FindByID(ctx, move.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), found.Quantity)
	})
}

func TestStockBalanceRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	tdb.CleanTables()

	ctx := context.Background()
	repo := persistence.NewGormStockBalanceRepository(tdb.DB)

	productID := uuid.New()
	locationID := uuid.New()
	batchID := uuid.New()
	tdb.CreateTestLocation(locationID)
	tdb.CreateTestBatch(batchID, productID, nil)

	t.Run("GetOrCreate returns the same row on repeat", func(t *testing.T) {
		first, err := repo.GetOrCreate(ctx, productID, batchID, locationID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), first.Quantity)

		second, err := repo.GetOrCreate(ctx, productID, batchID, locationID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("stale version loses the write", func(t *testing.T) {
		bal, err := repo.GetOrCreate(ctx, productID, batchID, locationID)
		require.NoError(t, err)

		stale, err := repo.FindByKey(ctx, productID, batchID, locationID)
		require.NoError(t, err)

		require.NoError(t, bal.Add(10))
		require.NoError(t, repo.Save(ctx, bal))

		require.NoError(t, stale.Add(5))
		err = repo.Save(ctx, stale)
		require.ErrorIs(t, err, shared.ErrConcurrencyConflict)

		current, err := repo.FindByKey(ctx, productID, batchID, locationID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), current.Quantity)
	})

	t.Run("database rejects a negative balance", func(t *testing.T) {
		err := tdb.DB.Exec(`
			UPDATE stock_balances SET quantity = -1
			WHERE product_id = ? AND batch_id = ? AND location_id = ?
		`, productID.String(), batchID.String(), locationID.String()).Error
		require.Error(t, err)
	})
}

func TestLocationRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	tdb.CleanTables()

	ctx := context.Background()
	repo := persistence.NewGormLocationRepository(tdb.DB)

	t.Run("duplicate code is rejected", func(t *testing.T) {
		loc, err := inventory.NewLocation("DISP-1", "Dispensary")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, loc))

		dup, err := inventory.NewLocation("DISP-1", "Another dispensary")
		require.NoError(t, err)
		err = repo.Save(ctx, dup)
		require.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("partial index allows only one active default", func(t *testing.T) {
		first, err := inventory.NewLocation("WARD-1", "Ward cabinet")
		require.NoError(t, err)
		first.IsDefault = true
		require.NoError(t, repo.Save(ctx, first))

		second, err := inventory.NewLocation("WARD-2", "Second cabinet")
		require.NoError(t, err)
		second.IsDefault = true
		err = repo.Save(ctx, second)
		require.ErrorIs(t, err, shared.ErrAlreadyExists)

		found, err := repo.FindDefault(ctx)
		require.NoError(t, err)
		assert.Equal(t, "WARD-1", found.Code)
	})
}

func TestStockBatchRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	tdb.CleanTables()

	ctx := context.Background()
	repo := persistence.NewGormStockBatchRepository(tdb.DB)

	productID := uuid.New()
	soon := time.Now().Add(10 * 24 * time.Hour)
	far := time.Now().Add(400 * 24 * time.Hour)

	seed := func(number string, expiry *time.Time) *inventory.StockBatch {
		batch, err := inventory.NewStockBatch(productID, number, expiry, time.Now(), decimal.NewFromInt(1))
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, batch))
		return batch
	}

	expiring := seed("LOT-SOON", &soon)
	seed("LOT-FAR", &far)
	seed("LOT-NONE", nil)

	t.Run("duplicate batch number for the same product is rejected", func(t *testing.T) {
		dup, err := inventory.NewStockBatch(productID, "LOT-SOON", &soon, time.Now(), decimal.NewFromInt(1))
		require.NoError(t, err)
		err = repo.Save(ctx, dup)
		require.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("expiry window excludes far and undated batches", func(t *testing.T) {
		batches, err := repo.FindExpiringBefore(ctx, time.Now().Add(30*24*time.Hour))
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, expiring.ID, batches[0].ID)
	})
}
