// Package pool provides parameter pool implementations for the load generator.
// It supports storing and retrieving values by semantic type with TTL expiration.
package pool

import (
	"sync/atomic"
	"time"
)

// SemanticType represents a semantic classification of parameter values.
// Examples: entity.product.id, document.sale.id, common.idempotency_key
type SemanticType string

// Semantic types harvested from or fed into the ledger API
const (
	SemanticTypeActorID    SemanticType = "entity.actor.id"
	SemanticTypeProductID  SemanticType = "entity.product.id"
	SemanticTypeBatchID    SemanticType = "entity.batch.id"
	SemanticTypeLocationID SemanticType = "entity.location.id"

	SemanticTypeSaleID   SemanticType = "document.sale.id"
	SemanticTypeRefundID SemanticType = "document.refund.id"

	SemanticTypeRequestID      SemanticType = "common.request_id"
	SemanticTypeIdempotencyKey SemanticType = "common.idempotency_key"
	SemanticTypeBatchNumber    SemanticType = "common.batch_number"
)

// ParameterValue is one harvested value plus its expiry and access
// bookkeeping. Touch is called under the owning buffer's lock.
type ParameterValue struct {
	// Value holds the actual parameter value (any JSON-compatible type).
	// Treat it as immutable after creation.
	Value any

	// SemanticType identifies the semantic classification of this value
	SemanticType SemanticType

	// CreatedAt is when this value was added to the pool
	CreatedAt time.Time

	// ExpiresAt is when this value should be considered expired (zero means
	// no expiration)
	ExpiresAt time.Time

	accessCount atomic.Int64
}

// NewParameterValue creates a new ParameterValue with the given value and
// semantic type. TTL of 0 means the value never expires.
func NewParameterValue(value any, semanticType SemanticType, ttl time.Duration) *ParameterValue {
	now := time.Now()
	pv := &ParameterValue{
		Value:        value,
		SemanticType: semanticType,
		CreatedAt:    now,
	}
	if ttl > 0 {
		pv.ExpiresAt = now.Add(ttl)
	}
	return pv
}

// IsExpired returns true if this value has expired.
func (pv *ParameterValue) IsExpired() bool {
	if pv.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(pv.ExpiresAt)
}

// Touch records one retrieval.
func (pv *ParameterValue) Touch() {
	pv.accessCount.Add(1)
}

// AccessCount returns the number of times this value has been accessed.
func (pv *ParameterValue) AccessCount() int64 {
	return pv.accessCount.Load()
}
