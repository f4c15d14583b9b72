package dto

import (
	"net/http"
	"strings"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when the caller identity is missing or invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller lacks permission
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeIdempotencyConflict is used when an operation was already recorded
	ErrCodeIdempotencyConflict = "ERR_IDEMPOTENCY_CONFLICT"
)

// Ledger business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeInsufficientStock is used when FEFO allocation cannot cover a sale
	ErrCodeInsufficientStock = "ERR_INSUFFICIENT_STOCK"
	// ErrCodeExpiredBatch is used when a batch is past its expiry date
	ErrCodeExpiredBatch = "ERR_EXPIRED_BATCH"
	// ErrCodeOverRefund is used when a refund exceeds the consumed quantity
	ErrCodeOverRefund = "ERR_OVER_REFUND"
	// ErrCodeInvalidRefundState is used when the sale is not refundable
	ErrCodeInvalidRefundState = "ERR_INVALID_REFUND_STATE"
	// ErrCodeSaleNotFinalized is used when consuming stock for a draft sale
	ErrCodeSaleNotFinalized = "ERR_SALE_NOT_FINALIZED"
	// ErrCodeReversalOfReversal is used when reversing a reversal move
	ErrCodeReversalOfReversal = "ERR_REVERSAL_OF_REVERSAL"
	// ErrCodeNegativeBalance is used when a write would drive stock negative
	ErrCodeNegativeBalance = "ERR_NEGATIVE_BALANCE"
	// ErrCodeNoDefaultLocation is used when no default location is configured
	ErrCodeNoDefaultLocation = "ERR_NO_DEFAULT_LOCATION"
	// ErrCodeLedgerOutOfBalance is used when the move log does not reconcile
	ErrCodeLedgerOutOfBalance = "ERR_LEDGER_OUT_OF_BALANCE"
	// ErrCodeImmutableMove is used when updating or deleting a ledger move
	ErrCodeImmutableMove = "ERR_IMMUTABLE_MOVE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeIdempotencyConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:       http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:       http.StatusUnprocessableEntity,
	ErrCodeInsufficientStock:  http.StatusUnprocessableEntity,
	ErrCodeExpiredBatch:       http.StatusUnprocessableEntity,
	ErrCodeOverRefund:         http.StatusUnprocessableEntity,
	ErrCodeInvalidRefundState: http.StatusUnprocessableEntity,
	ErrCodeSaleNotFinalized:   http.StatusUnprocessableEntity,
	ErrCodeReversalOfReversal: http.StatusUnprocessableEntity,
	ErrCodeNegativeBalance:    http.StatusUnprocessableEntity,
	ErrCodeNoDefaultLocation:  http.StatusUnprocessableEntity,
	ErrCodeImmutableMove:      http.StatusUnprocessableEntity,

	// Reconciliation failures are a server-side integrity problem
	ErrCodeLedgerOutOfBalance: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the transport format
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":             ErrCodeNotFound,
	"ALREADY_EXISTS":        ErrCodeAlreadyExists,
	"INVALID_INPUT":         ErrCodeInvalidInput,
	"INVALID_STATE":         ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT":  ErrCodeConcurrencyConflict,
	"IDEMPOTENCY_CONFLICT":  ErrCodeIdempotencyConflict,
	"INSUFFICIENT_STOCK":    ErrCodeInsufficientStock,
	"EXPIRED_BATCH":         ErrCodeExpiredBatch,
	"OVER_REFUND":           ErrCodeOverRefund,
	"INVALID_REFUND_STATE":  ErrCodeInvalidRefundState,
	"SALE_NOT_FINALIZED":    ErrCodeSaleNotFinalized,
	"REVERSAL_OF_REVERSAL":  ErrCodeReversalOfReversal,
	"NEGATIVE_BALANCE":      ErrCodeNegativeBalance,
	"NO_DEFAULT_LOCATION":   ErrCodeNoDefaultLocation,
	"LEDGER_OUT_OF_BALANCE": ErrCodeLedgerOutOfBalance,
	"IMMUTABLE_MOVE":        ErrCodeImmutableMove,
	"CANNOT_DEACTIVATE":     ErrCodeBusinessRule,
	"VALIDATION_ERROR":      ErrCodeValidation,
	"BAD_REQUEST":           ErrCodeBadRequest,
	"INTERNAL_ERROR":        ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the transport format.
// Entity constructors emit field-specific INVALID_* codes (INVALID_QUANTITY,
// INVALID_BATCH_NUMBER, ...); those all collapse to invalid input. Codes
// already in the transport format or unknown are returned as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	if strings.HasPrefix(code, "INVALID_") {
		return ErrCodeInvalidInput
	}
	return code
}
