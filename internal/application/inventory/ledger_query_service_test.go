package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLedgerQueryService_VerifyBalance(t *testing.T) {
	ctx := context.Background()
	productID := uuid.New()
	batchID := uuid.New()
	locationID := uuid.New()

	t.Run("move log reconciles to the balance", func(t *testing.T) {
		mocks := newLedgerMocks()
		service := NewLedgerQueryService(mocks.scope)

		bal := createTestBalance(productID, batchID, locationID, 17)

		mocks.moves.On("SumByKey", ctx, productID, batchID, locationID).Return(int64(17), nil).Once()
		mocks.balances.On("FindByKey", ctx, productID, batchID, locationID).Return(&bal, nil).Once()

		err := service.VerifyBalance(ctx, productID, batchID, locationID)

		assert.NoError(t, err)
	})

	t.Run("mismatch is reported", func(t *testing.T) {
		mocks := newLedgerMocks()
		service := NewLedgerQueryService(mocks.scope)

		bal := createTestBalance(productID, batchID, locationID, 20)

		mocks.moves.On("SumByKey", ctx, productID, batchID, locationID).Return(int64(17), nil).Once()
		mocks.balances.On("FindByKey", ctx, productID, batchID, locationID).Return(&bal, nil).Once()

		err := service.VerifyBalance(ctx, productID, batchID, locationID)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrLedgerOutOfBalance))
	})

	t.Run("missing balance row with zero move sum is consistent", func(t *testing.T) {
		mocks := newLedgerMocks()
		service := NewLedgerQueryService(mocks.scope)

		mocks.moves.On("SumByKey", ctx, productID, batchID, locationID).Return(int64(0), nil).Once()
		mocks.balances.On("FindByKey", ctx, productID, batchID, locationID).Return(nil, shared.ErrNotFound).Once()

		err := service.VerifyBalance(ctx, productID, batchID, locationID)

		assert.NoError(t, err)
	})

	t.Run("missing balance row with nonzero move sum is not", func(t *testing.T) {
		mocks := newLedgerMocks()
		service := NewLedgerQueryService(mocks.scope)

		mocks.moves.On("SumByKey", ctx, productID, batchID, locationID).Return(int64(5), nil).Once()
		mocks.balances.On("FindByKey", ctx, productID, batchID, locationID).Return(nil, shared.ErrNotFound).Once()

		err := service.VerifyBalance(ctx, productID, batchID, locationID)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrLedgerOutOfBalance))
	})
}

func TestLedgerQueryService_Reads(t *testing.T) {
	ctx := context.Background()

	t.Run("moves by sale", func(t *testing.T) {
		mocks := newLedgerMocks()
		service := NewLedgerQueryService(mocks.scope)

		saleID := uuid.New()
		recorded := []inventory.StockMove{{BaseEntity: shared.NewBaseEntity(), MoveType: inventory.MoveTypeSaleOut, Quantity: -2}}

		mocks.moves.On("FindBySale", ctx, saleID).Return(recorded, nil).Once()

		moves, err := service.MovesBySale(ctx, saleID)

		require.NoError(t, err)
		assert.Equal(t, recorded, moves)
	})

	t.Run("on-hand total for a product", func(t *testing.T) {
		mocks := newLedgerMocks()
		service := NewLedgerQueryService(mocks.scope)

		productID := uuid.New()
		locationID := uuid.New()

		mocks.balances.On("SumByProductAndLocation", ctx, productID, locationID).Return(int64(42), nil).Once()

		total, err := service.OnHand(ctx, productID, locationID)

		require.NoError(t, err)
		assert.Equal(t, int64(42), total)
	})

	t.Run("expiring batches within a window", func(t *testing.T) {
		mocks := newLedgerMocks()
		service := NewLedgerQueryService(mocks.scope)

		productID := uuid.New()
		batch := createTestBatch(productID, "LOT-9", daysFromNow(5), time.Now())

		mocks.batches.On("FindExpiringBefore", ctx, mock.AnythingOfType("time.Time")).
			Return([]inventory.StockBatch{*batch}, nil).Once()

		batches, err := service.ExpiringBatches(ctx, 7)

		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, "LOT-9", batches[0].BatchNumber)
	})
}
