package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"storage", NewStorageError("disk gone", nil), IsStorage},
		{"not found", NewNotFoundError("missing", nil), IsNotFound},
		{"network", NewNetworkError("unreachable", nil), IsNetwork},
		{"remote rejected", NewRemoteRejectedError("db down", nil), IsRemoteRejected},
		{"invalid input", NewValidationError("bad kind", nil), IsInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestAppErrorWrapping(t *testing.T) {
	cause := errors.New("root cause")
	err := NewStorageError("write failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "STORAGE")
	assert.Contains(t, err.Error(), "write failed")
	assert.Contains(t, err.Error(), "root cause")

	// Classification survives further wrapping.
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsStorage(wrapped))
}

func TestSyncInProgressError(t *testing.T) {
	err := NewSyncInProgressError()
	assert.True(t, IsSyncInProgress(err))
	assert.False(t, IsSyncInProgress(errors.New("other")))
	assert.Equal(t, "sync already in progress", err.Error())
}

func TestItemNotFoundError(t *testing.T) {
	err := NewItemNotFoundError("abc")
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "abc")
}
