package shared

import (
	"context"
	"time"
)

// IdempotencyStore caches completed ledger operation keys so retried calls can
// short-circuit before hitting the database. It is a best-effort fast path:
// the append-only move log and its unique indexes remain the authority, so a
// cache miss or store failure is never an error condition for callers.
type IdempotencyStore interface {
	// MarkProcessed marks an operation as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, operationKey string, ttl time.Duration) (bool, error)

	// IsProcessed checks if an operation has already been processed.
	IsProcessed(ctx context.Context, operationKey string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency caching
type IdempotencyConfig struct {
	// TTL is the time-to-live for processed operation keys
	TTL time.Duration

	// Enabled determines whether the cache fast path is used
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
