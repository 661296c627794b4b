// Package apperror defines the coded errors returned by inventory operations.
// Codes are stable: API clients and the import report match on them.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (422)
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeExpiredUndoWindow      = "EXPIRED_UNDO_WINDOW"
	CodeNoMovementToUndo       = "NO_MOVEMENT_TO_UNDO"
	CodeNoChange               = "NO_CHANGE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Inventory import and audit (reported, never returned as request failures)
	CodeInvalidCsvRow        = "INVALID_CSV_ROW"
	CodePartialImportFailure = "PARTIAL_IMPORT_FAILURE"
	CodeAuditWriteFailure    = "AUDIT_WRITE_FAILURE"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeProductNotFound = "PRODUCT_NOT_FOUND"

	// Conflict (409)
	CodeConflictingMovement = "CONFLICTING_MOVEMENT"
	CodeIdempotency         = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInsufficientStock creates a stock shortage error.
// physical is the stock on hand before the rejected delta was applied.
func NewInsufficientStock(productID string, delta, physical int) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"delta":      delta,
			"physical":   physical,
			"resulting":  physical + delta,
		},
	}
}

// NewProductNotFound creates a not found error for catalog products (404)
func NewProductNotFound(productID any) *AppError {
	return &AppError{
		Code:       CodeProductNotFound,
		Message:    "Product not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"product_id": productID},
	}
}

// NewNoMovementToUndo is returned when a product has no ledger entries.
func NewNoMovementToUndo(productID any) *AppError {
	return &AppError{
		Code:       CodeNoMovementToUndo,
		Message:    "No movement to undo",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"product_id": productID},
	}
}

// NewExpiredUndoWindow is returned when the latest movement is older than the undo window.
func NewExpiredUndoWindow(movementID any, createdAt time.Time, window time.Duration) *AppError {
	return &AppError{
		Code:       CodeExpiredUndoWindow,
		Message:    "Undo window has expired",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"movement_id": movementID,
			"created_at":  createdAt,
			"window":      window.String(),
		},
	}
}

// NewConflictingMovement is returned when the movement being undone is no longer the latest.
func NewConflictingMovement(expected, actual any) *AppError {
	return &AppError{
		Code:       CodeConflictingMovement,
		Message:    "A newer movement was recorded. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"expected_movement_id": expected, "latest_movement_id": actual},
	}
}

// NewNoChange is returned when a set-stock request targets the current quantity.
func NewNoChange(productID any, quantity int) *AppError {
	return &AppError{
		Code:       CodeNoChange,
		Message:    "Stock already at target quantity",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"product_id": productID, "quantity": quantity},
	}
}

// NewTimeout creates a timeout error (504)
func NewTimeout(err error) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    "Operation timed out",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different user/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
