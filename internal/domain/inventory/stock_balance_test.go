package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockBalance(t *testing.T) {
	newBalance := func(t *testing.T, quantity int64) *StockBalance {
		t.Helper()
		bal, err := NewStockBalance(uuid.New(), uuid.New(), uuid.New())
		require.NoError(t, err)
		bal.Quantity = quantity
		return bal
	}

	t.Run("deduct within the balance", func(t *testing.T) {
		bal := newBalance(t, 10)

		require.NoError(t, bal.Deduct(4))
		assert.Equal(t, int64(6), bal.Quantity)
		assert.Equal(t, 2, bal.Version)
	})

	t.Run("deduct can never go negative", func(t *testing.T) {
		bal := newBalance(t, 3)

		err := bal.Deduct(4)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrNegativeBalance))
		assert.Equal(t, int64(3), bal.Quantity)
	})

	t.Run("add restores quantity", func(t *testing.T) {
		bal := newBalance(t, 0)

		require.NoError(t, bal.Add(5))
		assert.Equal(t, int64(5), bal.Quantity)
		assert.True(t, bal.HasStock())
	})

	t.Run("apply follows the sign", func(t *testing.T) {
		bal := newBalance(t, 10)

		require.NoError(t, bal.Apply(3))
		assert.Equal(t, int64(13), bal.Quantity)
		require.NoError(t, bal.Apply(-6))
		assert.Equal(t, int64(7), bal.Quantity)
	})

	t.Run("non-positive amounts are rejected", func(t *testing.T) {
		bal := newBalance(t, 10)

		require.Error(t, bal.Deduct(0))
		require.Error(t, bal.Add(-1))
	})

	t.Run("key requires all three IDs", func(t *testing.T) {
		_, err := NewStockBalance(uuid.Nil, uuid.New(), uuid.New())
		require.Error(t, err)
	})
}

func TestStockBatch(t *testing.T) {
	productID := uuid.New()

	t.Run("expiry boundary is inclusive", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		batch, err := NewStockBatch(productID, "LOT-1", &at, at.AddDate(0, -3, 0), decimal.NewFromInt(2))
		require.NoError(t, err)

		assert.True(t, batch.IsExpired(at))
		assert.True(t, batch.IsExpired(at.Add(time.Hour)))
		assert.False(t, batch.IsExpired(at.Add(-time.Hour)))
	})

	t.Run("no expiry never expires", func(t *testing.T) {
		batch, err := NewStockBatch(productID, "LOT-2", nil, time.Now(), decimal.NewFromInt(2))
		require.NoError(t, err)

		assert.False(t, batch.IsExpired(time.Now().AddDate(100, 0, 0)))
		assert.Equal(t, -1, batch.DaysUntilExpiry())
	})

	t.Run("batch number is required", func(t *testing.T) {
		_, err := NewStockBatch(productID, "  ", nil, time.Now(), decimal.NewFromInt(2))
		require.Error(t, err)
	})

	t.Run("negative unit cost is rejected", func(t *testing.T) {
		_, err := NewStockBatch(productID, "LOT-3", nil, time.Now(), decimal.NewFromInt(-1))
		require.Error(t, err)
	})
}

func TestLocation(t *testing.T) {
	t.Run("code and name are required", func(t *testing.T) {
		_, err := NewLocation("", "Dispensary")
		require.Error(t, err)

		_, err = NewLocation("DISP-1", " ")
		require.Error(t, err)
	})

	t.Run("activation round trip", func(t *testing.T) {
		loc, err := NewLocation(" DISP-1 ", "Dispensary")
		require.NoError(t, err)
		assert.Equal(t, "DISP-1", loc.Code)
		assert.True(t, loc.Active)

		loc.Deactivate()
		assert.False(t, loc.Active)
		loc.Activate()
		assert.True(t, loc.Active)
	})
}
