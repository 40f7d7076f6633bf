// Package errors provides custom error types for the Stockroom API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, optional structured details
// and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so
// errors.Is(err, ErrDepthExceeded) holds for copies made by Wrap/WithMessage.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Details:    sentinel.Details,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Details:    sentinel.Details,
		Internal:   sentinel.Internal,
	}
}

// WithDetails creates a new AppError carrying structured details that are
// returned to the client alongside the code and message.
func WithDetails(sentinel *AppError, message string, details any) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Details:    details,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized  = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden     = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrInvalidAPIKey = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
	ErrCatalogAPIOff = &AppError{Code: "CATALOG_API_NOT_CONFIGURED", Message: "Catalog endpoints are not configured", StatusCode: http.StatusServiceUnavailable}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Category tree errors.
var (
	ErrCategoryNotFound    = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
	ErrSelfParentCategory  = &AppError{Code: "SELF_PARENT_CATEGORY", Message: "A category cannot be its own parent", StatusCode: http.StatusBadRequest}
	ErrDescendantTarget    = &AppError{Code: "DESCENDANT_TARGET", Message: "A category cannot be moved under one of its descendants", StatusCode: http.StatusBadRequest}
	ErrDepthExceeded       = &AppError{Code: "DEPTH_EXCEEDED", Message: "At most 3 category levels are allowed", StatusCode: http.StatusBadRequest}
	ErrCycleDetected       = &AppError{Code: "CYCLE_DETECTED", Message: "Circular reference detected in the category hierarchy", StatusCode: http.StatusConflict}
	ErrCategoryHasChildren = &AppError{Code: "CATEGORY_HAS_CHILDREN", Message: "Category has child categories", StatusCode: http.StatusConflict}
	ErrSentinelProtected   = &AppError{Code: "SENTINEL_PROTECTED", Message: "The fallback category cannot be deleted or deactivated", StatusCode: http.StatusConflict}
	ErrMissingSentinel     = &AppError{Code: "MISSING_SENTINEL", Message: "The fallback category is not provisioned", StatusCode: http.StatusInternalServerError}
)

// Catalog item errors.
var (
	ErrItemNotFound  = &AppError{Code: "ITEM_NOT_FOUND", Message: "Item not found", StatusCode: http.StatusNotFound}
	ErrDuplicateItem = &AppError{Code: "DUPLICATE_ITEM", Message: "An item with this code already exists", StatusCode: http.StatusConflict}
)
