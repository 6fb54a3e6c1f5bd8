package remote

import (
	"errors"
	"fmt"
)

// APIError represents a rejection from the back-office API: the request
// reached the server but came back with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote API error (status %d): %s", e.StatusCode, e.Message)
}

// NewAPIError creates a new APIError with the given status code and message
func NewAPIError(statusCode int, message string) error {
	return &APIError{StatusCode: statusCode, Message: message}
}

// IsAPIError checks if an error is a server-side rejection and returns it
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ValidationError represents invalid input to remote client methods
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: invalid %s: %s", e.Field, e.Value)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, value string) error {
	return &ValidationError{Field: field, Value: value}
}
