package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	t.Run("first mark wins", func(t *testing.T) {
		fresh, err := store.MarkProcessed(ctx, "ledger:consume:sale-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)

		again, err := store.MarkProcessed(ctx, "ledger:consume:sale-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, again)
	})

	t.Run("expired key can be re-marked", func(t *testing.T) {
		fresh, err := store.MarkProcessed(ctx, "ledger:refund:r-1", time.Millisecond)
		require.NoError(t, err)
		assert.True(t, fresh)

		time.Sleep(5 * time.Millisecond)

		fresh, err = store.MarkProcessed(ctx, "ledger:refund:r-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)
	})
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	processed, err := store.IsProcessed(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = store.MarkProcessed(ctx, "known", time.Minute)
	require.NoError(t, err)

	processed, err = store.IsProcessed(ctx, "known")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_ExpiredKeyIsNotProcessed(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	_, err := store.MarkProcessed(ctx, "short-lived", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	processed, err := store.IsProcessed(ctx, "short-lived")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestInMemoryIdempotencyStore_ConcurrentMark(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	const goroutines = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := store.MarkProcessed(ctx, "contended", time.Minute)
			require.NoError(t, err)
			if fresh {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, store.Size())
}

func TestInMemoryIdempotencyStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryIdempotencyStore()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
