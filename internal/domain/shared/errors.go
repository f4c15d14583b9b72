package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")

	// Ledger errors
	ErrInsufficientStock    = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrExpiredBatch         = NewDomainError("EXPIRED_BATCH", "Batch is past its expiry date")
	ErrOverRefund           = NewDomainError("OVER_REFUND", "Refund exceeds originally consumed quantity")
	ErrInvalidRefundState   = NewDomainError("INVALID_REFUND_STATE", "Sale is not in a refundable state")
	ErrSaleNotFinalized     = NewDomainError("SALE_NOT_FINALIZED", "Sale must be finalized before stock consumption")
	ErrReversalOfReversal   = NewDomainError("REVERSAL_OF_REVERSAL", "A reversal move cannot itself be reversed")
	ErrIdempotencyConflict  = NewDomainError("IDEMPOTENCY_CONFLICT", "Operation was already recorded")
	ErrNegativeBalance      = NewDomainError("NEGATIVE_BALANCE", "Stock balance cannot go negative")
	ErrNoDefaultLocation    = NewDomainError("NO_DEFAULT_LOCATION", "No default stock location configured")
	ErrLedgerOutOfBalance   = NewDomainError("LEDGER_OUT_OF_BALANCE", "Move log does not reconcile to the materialized balance")
	ErrImmutableMove        = NewDomainError("IMMUTABLE_MOVE", "Ledger moves cannot be updated or deleted")
)
