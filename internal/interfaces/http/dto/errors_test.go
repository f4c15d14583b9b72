package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeUnknown, http.StatusInternalServerError},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeValidationRequired, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyExists, http.StatusConflict},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{ErrCodeIdempotencyConflict, http.StatusConflict},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeBusinessRule, http.StatusUnprocessableEntity},
		{ErrCodeInsufficientStock, http.StatusUnprocessableEntity},
		{ErrCodeExpiredBatch, http.StatusUnprocessableEntity},
		{ErrCodeOverRefund, http.StatusUnprocessableEntity},
		{ErrCodeInvalidRefundState, http.StatusUnprocessableEntity},
		{ErrCodeSaleNotFinalized, http.StatusUnprocessableEntity},
		{ErrCodeReversalOfReversal, http.StatusUnprocessableEntity},
		{ErrCodeNegativeBalance, http.StatusUnprocessableEntity},
		{ErrCodeNoDefaultLocation, http.StatusUnprocessableEntity},
		{ErrCodeImmutableMove, http.StatusUnprocessableEntity},
		{ErrCodeLedgerOutOfBalance, http.StatusInternalServerError},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Domain codes should be normalized
		{"NOT_FOUND", ErrCodeNotFound},
		{"ALREADY_EXISTS", ErrCodeAlreadyExists},
		{"INVALID_INPUT", ErrCodeInvalidInput},
		{"INVALID_STATE", ErrCodeInvalidState},
		{"CONCURRENCY_CONFLICT", ErrCodeConcurrencyConflict},
		{"IDEMPOTENCY_CONFLICT", ErrCodeIdempotencyConflict},
		{"INSUFFICIENT_STOCK", ErrCodeInsufficientStock},
		{"EXPIRED_BATCH", ErrCodeExpiredBatch},
		{"OVER_REFUND", ErrCodeOverRefund},
		{"INVALID_REFUND_STATE", ErrCodeInvalidRefundState},
		{"SALE_NOT_FINALIZED", ErrCodeSaleNotFinalized},
		{"REVERSAL_OF_REVERSAL", ErrCodeReversalOfReversal},
		{"NEGATIVE_BALANCE", ErrCodeNegativeBalance},
		{"NO_DEFAULT_LOCATION", ErrCodeNoDefaultLocation},
		{"LEDGER_OUT_OF_BALANCE", ErrCodeLedgerOutOfBalance},
		{"IMMUTABLE_MOVE", ErrCodeImmutableMove},

		// Field-specific constructor codes collapse to invalid input
		{"INVALID_QUANTITY", ErrCodeInvalidInput},
		{"INVALID_BATCH_NUMBER", ErrCodeInvalidInput},
		{"INVALID_LOCATION_CODE", ErrCodeInvalidInput},

		// Codes already in transport format pass through
		{ErrCodeNotFound, ErrCodeNotFound},
		{ErrCodeInsufficientStock, ErrCodeInsufficientStock},

		{"CANNOT_DEACTIVATE", ErrCodeBusinessRule},

		// Unknown codes pass through
		{"SOMETHING_ELSE", "SOMETHING_ELSE"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestNormalizedDomainCodesHaveStatusMappings(t *testing.T) {
	// Every code the normalizer can produce must resolve to a real status,
	// otherwise domain errors silently degrade to 500
	for domainCode, transportCode := range DomainErrorCodeMapping {
		t.Run(domainCode, func(t *testing.T) {
			_, ok := ErrorCodeHTTPStatus[transportCode]
			assert.True(t, ok, "no HTTP status for %s", transportCode)
		})
	}
}
