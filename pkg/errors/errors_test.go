package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("signup: %w", Clone(ErrConflict, "email already exists"))

	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "email already exists", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("connection refused"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, ErrInternal.Message, appErr.Message)
	assert.Nil(t, FromError(nil))
}

func TestCloneMatchesOriginalByCode(t *testing.T) {
	clone := Clone(ErrUnauthorized, "refresh token expired")
	assert.True(t, errors.Is(clone, ErrUnauthorized))
	assert.False(t, errors.Is(clone, ErrConflict))
	assert.Equal(t, "unauthorized", ErrUnauthorized.Message)
}

func TestInternalHidesCauseFromMessage(t *testing.T) {
	cause := errors.New("pq: password authentication failed")
	appErr := Internal(cause, "failed to load user")
	assert.Equal(t, "failed to load user", appErr.Message)
	assert.ErrorIs(t, appErr, cause)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}
