package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"avatarcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())
}

func TestAppError_WithCause(t *testing.T) {
	cause := stderrors.New("sdp: missing m-line")
	err := NewInvalidOfferError(cause)

	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.Contains(t, err.Error(), "sdp: missing m-line")
	assert.ErrorIs(t, err, cause)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewConflictError("generation already running").
		WithContext("session_id", "abc").
		WithContext("attempt", 2)

	assert.Equal(t, "abc", err.Context["session_id"])
	assert.Equal(t, 2, err.Context["attempt"])
}

func TestGetAppError_Wrapped(t *testing.T) {
	appErr := NewNotFoundError("session")
	wrapped := fmt.Errorf("handler: %w", appErr)

	assert.Same(t, appErr, GetAppError(wrapped))
	assert.True(t, IsAppError(wrapped))
	assert.Nil(t, GetAppError(stderrors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}

func TestAppError_IsByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewConflictError("busy"))
	assert.True(t, stderrors.Is(err, NewConflictError("other message")))
	assert.False(t, stderrors.Is(err, NewNotFoundError("x")))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(NewUnsupportedError("platform")))
	assert.True(t, IsClientError(NewConflictError("busy")))
	assert.False(t, IsClientError(NewInternalError("boom")))
	assert.False(t, IsClientError(stderrors.New("plain")))
}

func TestFromDomain(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   ErrorCode
	}{
		{fmt.Errorf("parse: %w", domain.ErrInvalidOffer), http.StatusBadRequest, ErrCodeInvalidOffer},
		{domain.ErrUnsupportedPlatform, http.StatusBadRequest, ErrCodeUnsupported},
		{domain.ErrNotReady, http.StatusBadRequest, ErrCodePrecondition},
		{domain.ErrGenerationInProgress, http.StatusConflict, ErrCodeConflict},
		{domain.ErrAlreadyNegotiated, http.StatusConflict, ErrCodeConflict},
		{fmt.Errorf("lookup: %w", domain.ErrSessionNotFound), http.StatusNotFound, ErrCodeNotFound},
		{domain.ErrModelsNotLoaded, http.StatusInternalServerError, ErrCodeInternal},
		{stderrors.New("disk full"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		appErr := FromDomain(tc.err)
		assert.Equal(t, tc.status, appErr.HTTPStatus, tc.err.Error())
		assert.Equal(t, tc.code, appErr.Code, tc.err.Error())
		assert.ErrorIs(t, appErr, tc.err)
	}

	assert.Nil(t, FromDomain(nil))
	conflict := NewConflictError("busy")
	assert.Same(t, conflict, FromDomain(conflict))
	assert.Equal(t, "Internal server error", FromDomain(stderrors.New("secret")).Message)
}
