package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrStorage        ErrorType = "STORAGE"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrNetwork        ErrorType = "NETWORK"
	ErrRemoteRejected ErrorType = "REMOTE_REJECTED"
	ErrInvalidInput   ErrorType = "INVALID_INPUT"
	ErrInternal       ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type      ErrorType
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsStorage checks if the error is a local persistence error. Storage
// errors are treated as transient: the current operation is abandoned but
// nothing is marked failed.
func IsStorage(err error) bool {
	return isType(err, ErrStorage)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	var itemErr *ItemNotFoundError
	if errors.As(err, &itemErr) {
		return true
	}
	return isType(err, ErrNotFound)
}

// IsNetwork checks if the error is a network error (remote unreachable)
func IsNetwork(err error) bool {
	return isType(err, ErrNetwork)
}

// IsRemoteRejected checks if the error is a server-side rejection
// (non-success status with a diagnostic message)
func IsRemoteRejected(err error) bool {
	return isType(err, ErrRemoteRejected)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return isType(err, ErrInvalidInput)
}

// NewStorageError creates a new storage error
func NewStorageError(message string, err error) *AppError {
	return New(ErrStorage, message, err)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return New(ErrNotFound, message, err)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, err error) *AppError {
	return New(ErrNetwork, message, err)
}

// NewRemoteRejectedError creates a new remote rejection error
func NewRemoteRejectedError(message string, err error) *AppError {
	return New(ErrRemoteRejected, message, err)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return New(ErrInvalidInput, message, err)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return New(ErrInternal, message, err)
}

// SyncInProgressError represents an error when a sync pass is already in
// progress and a non-forced trigger was dropped
type SyncInProgressError struct{}

func (e *SyncInProgressError) Error() string {
	return "sync already in progress"
}

// NewSyncInProgressError creates a new SyncInProgressError
func NewSyncInProgressError() error {
	return &SyncInProgressError{}
}

// IsSyncInProgress checks if the error is a SyncInProgressError
func IsSyncInProgress(err error) bool {
	var e *SyncInProgressError
	return errors.As(err, &e)
}

// ItemNotFoundError represents a queue item that vanished between listing
// and update
type ItemNotFoundError struct {
	ID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("queue item not found: %s", e.ID)
}

// NewItemNotFoundError creates a new ItemNotFoundError
func NewItemNotFoundError(id string) error {
	return &ItemNotFoundError{ID: id}
}
