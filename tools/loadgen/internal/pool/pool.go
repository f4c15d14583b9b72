package pool

import (
	"context"
	"time"
)

// EvictionPolicy decides which value leaves a full pool.
type EvictionPolicy int

const (
	// EvictionFIFO evicts the oldest values first. The default: stale sale
	// IDs are the least useful refund targets.
	EvictionFIFO EvictionPolicy = iota

	// EvictionLRU evicts the least recently used values first.
	EvictionLRU

	// EvictionRandom evicts values at random.
	EvictionRandom
)

func (e EvictionPolicy) String() string {
	switch e {
	case EvictionFIFO:
		return "FIFO"
	case EvictionLRU:
		return "LRU"
	case EvictionRandom:
		return "Random"
	default:
		return "Unknown"
	}
}

// ParseEvictionPolicy parses a string into an EvictionPolicy, defaulting
// to FIFO.
func ParseEvictionPolicy(s string) EvictionPolicy {
	switch s {
	case "LRU", "lru":
		return EvictionLRU
	case "Random", "random", "RANDOM":
		return EvictionRandom
	default:
		return EvictionFIFO
	}
}

// Stats describes the state of a parameter pool.
type Stats struct {
	// TotalValues is the total number of values in the pool
	TotalValues int64

	// ValuesByType is the count of values per semantic type
	ValuesByType map[SemanticType]int64

	// HitCount is the number of Get calls that found a value
	HitCount int64

	// MissCount is the number of Get calls that came back empty
	MissCount int64

	// EvictionCount is the number of values evicted to make room
	EvictionCount int64

	// ExpiredCount is the number of values dropped by TTL cleanup
	ExpiredCount int64

	// AddCount is the total number of values added
	AddCount int64

	// Uptime is how long the pool has been running
	Uptime time.Duration
}

// HitRate returns the hit rate as a percentage (0-100). A low rate on
// document.sale.id means refund scenarios are outpacing consume scenarios.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total) * 100
}

// ParameterPool stores values harvested from ledger responses so later
// requests can reuse them.
type ParameterPool interface {
	// Add adds a value to the pool for its semantic type.
	// Returns the number of values evicted (if any) to make room.
	Add(ctx context.Context, value *ParameterValue) (evicted int, err error)

	// Get retrieves a value for the given semantic type.
	// Returns nil if no value is available.
	Get(ctx context.Context, semanticType SemanticType) (*ParameterValue, error)

	// GetRandom retrieves a random value for the given semantic type.
	// Returns nil if no value is available.
	GetRandom(ctx context.Context, semanticType SemanticType) (*ParameterValue, error)

	// Count returns the number of values for the given semantic type.
	Count(ctx context.Context, semanticType SemanticType) (int, error)

	// Cleanup removes expired values from the pool.
	// Returns the number of values removed.
	Cleanup(ctx context.Context) (int, error)

	// Stats returns statistics about the pool.
	Stats(ctx context.Context) (Stats, error)

	// Close releases resources held by the pool.
	Close() error
}

// PoolConfig holds configuration options for parameter pools.
type PoolConfig struct {
	// DefaultTTL is the default time-to-live for values (0 means no expiration)
	DefaultTTL time.Duration

	// MaxValuesPerType caps values per semantic type (0 means unlimited)
	MaxValuesPerType int

	// EvictionPolicy decides which value leaves a full pool
	EvictionPolicy EvictionPolicy

	// CleanupInterval is how often expired values are swept (0 disables the sweep)
	CleanupInterval time.Duration

	// ShardCount is the number of shards for ShardedParameterPool (rounded up
	// to a power of 2)
	ShardCount int
}

// DefaultPoolConfig returns the configuration used by the ledger runner.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		DefaultTTL:       5 * time.Minute,
		MaxValuesPerType: 1000,
		EvictionPolicy:   EvictionFIFO,
		CleanupInterval:  1 * time.Minute,
		ShardCount:       16,
	}
}
