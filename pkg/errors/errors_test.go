package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", Clone(ErrDuplicateEvent, "student already checked in at 07:55"))
	got := FromError(wrapped)
	assert.Equal(t, ErrDuplicateEvent.Code, got.Code)
	assert.Equal(t, http.StatusConflict, got.Status)
	assert.Equal(t, "student already checked in at 07:55", got.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestIsComparesCodes(t *testing.T) {
	err := Wrap(errors.New("dial tcp: timeout"), ErrDeviceUnavailable.Code, ErrDeviceUnavailable.Status, "reader offline")
	assert.True(t, Is(err, ErrDeviceUnavailable))
	assert.False(t, Is(err, ErrServiceUnavailable))
	assert.False(t, Is(nil, ErrDeviceUnavailable))
}

func TestStdlibIsMatchesClones(t *testing.T) {
	err := fmt.Errorf("checkout: %w", Clone(ErrInvalidTimestamp, "check-out 07:00 precedes check-in 07:40"))
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
	assert.NotErrorIs(t, err, ErrInvalidState)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Clone(ErrServiceUnavailable, "prediction API down")))
	assert.True(t, Retryable(ErrDeviceUnavailable))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.False(t, Retryable(ErrNotFound))
	assert.False(t, Retryable(Clone(ErrValidation, "term is required")))
	assert.False(t, Retryable(nil))
}
