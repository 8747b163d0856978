package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// Error returns the error message
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code, message string, status int, details ...string) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

var (
	ErrInvalidInput = NewAPIError("INVALID_INPUT", "Invalid request data", http.StatusBadRequest)
	ErrUnauthorized = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrNotFound     = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInternal     = NewAPIError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrConflict     = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)

	// Relationship errors, surfaced synchronously and never retried.
	ErrInvalidTarget    = NewAPIError("INVALID_TARGET", "Cannot send a friend request to yourself", http.StatusBadRequest)
	ErrAlreadyFriends   = NewAPIError("ALREADY_FRIENDS", "You are already friends with this user", http.StatusConflict)
	ErrDuplicateRequest = NewAPIError("DUPLICATE_REQUEST", "A friend request to this user is already pending", http.StatusConflict)

	// ErrMalformedRecord marks a stored document missing required fields.
	// Batch recomputation skips such records instead of aborting.
	ErrMalformedRecord = NewAPIError("MALFORMED_RECORD", "Stored record is missing required fields", http.StatusUnprocessableEntity)

	// ErrStoreUnavailable is a transient document-store failure. Live
	// subscriptions report it on their error channel and keep running.
	ErrStoreUnavailable = NewAPIError("STORE_UNAVAILABLE", "Document store temporarily unavailable", http.StatusServiceUnavailable)
)

func Wrap(err error, code, message string, status int) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return NewAPIError(code, message, status, err.Error())
}
