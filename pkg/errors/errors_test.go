package errors

import (
	"database/sql"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("enroll: %w", Clone(ErrCapacity, "class full"))
	appErr := FromError(wrapped)
	assert.Equal(t, ErrCapacity.Code, appErr.Code)
	assert.Equal(t, "class full", appErr.Message)
	assert.True(t, stdErrors.Is(wrapped, ErrCapacity))
	assert.False(t, stdErrors.Is(wrapped, ErrConflict))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
}

func TestWithDetailsDoesNotMutateSource(t *testing.T) {
	detailed := WithDetails(ErrConflict, map[string]int{"conflicts": 2})
	assert.NotNil(t, detailed.Details)
	assert.Nil(t, ErrConflict.Details)
}
