package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("adjust: %w", NewInsufficientStock("p-1", -4, 3))

	assert.True(t, HasCode(err, CodeInsufficientStock))
	assert.False(t, HasCode(err, CodeNoChange))
	assert.False(t, HasCode(errors.New("plain"), CodeInsufficientStock))

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	assert.Equal(t, -1, appErr.Details["resulting"])
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("canceling statement due to statement timeout")
	err := NewTimeout(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), CodeTimeout)
	assert.Contains(t, err.Error(), cause.Error())
	assert.Equal(t, "VALIDATION_ERROR: delta must be non-zero", NewValidation("delta must be non-zero").Error())
}

func TestWithDetail(t *testing.T) {
	err := NewForbidden("insufficient permissions").WithDetail("required_permission", "inventory:write")
	assert.Equal(t, "inventory:write", err.Details["required_permission"])
	assert.Equal(t, http.StatusForbidden, err.HTTPStatus)
}

func TestNewExpiredUndoWindow(t *testing.T) {
	created := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	err := NewExpiredUndoWindow("m-1", created, 10*time.Minute)

	assert.Equal(t, CodeExpiredUndoWindow, err.Code)
	assert.Equal(t, "10m0s", err.Details["window"])
	assert.Equal(t, created, err.Details["created_at"])
}

func TestNewConcurrentModification(t *testing.T) {
	err := NewConcurrentModification("inventory_settings", 1)
	assert.True(t, HasCode(err, CodeConcurrentModification))
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
}
