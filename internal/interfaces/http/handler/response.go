package handler

import "github.com/clinicpos/backend/internal/interfaces/http/dto"

// APIResponse represents a generic API response with a typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// QuantityData carries a single stock quantity in a response
type QuantityData struct {
	Quantity int64 `json:"quantity"`
}

// CountData carries a single count in a response
type CountData struct {
	Count int64 `json:"count"`
}
