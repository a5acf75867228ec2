package errors

import (
	stderrors "errors"
	"net/http"

	"avatarcast/internal/core/domain"
)

var domainCodes = []struct {
	err    error
	code   ErrorCode
	status int
}{
	{domain.ErrInvalidOffer, ErrCodeInvalidOffer, http.StatusBadRequest},
	{domain.ErrInvalidSessionID, ErrCodeInvalidInput, http.StatusBadRequest},
	{domain.ErrInvalidFPS, ErrCodeInvalidInput, http.StatusBadRequest},
	{domain.ErrInvalidInput, ErrCodeInvalidInput, http.StatusBadRequest},
	{domain.ErrInvalidIdentifier, ErrCodeInvalidInput, http.StatusBadRequest},
	{domain.ErrUnsupportedPlatform, ErrCodeUnsupported, http.StatusBadRequest},
	{domain.ErrNoAudioArtifact, ErrCodePrecondition, http.StatusBadRequest},
	{domain.ErrNotLive, ErrCodePrecondition, http.StatusBadRequest},
	{domain.ErrNotReady, ErrCodePrecondition, http.StatusBadRequest},
	{domain.ErrNotPreparing, ErrCodePrecondition, http.StatusBadRequest},
	{domain.ErrNotQuestion, ErrCodePrecondition, http.StatusBadRequest},
	{domain.ErrAlreadyAnswered, ErrCodePrecondition, http.StatusBadRequest},
	{domain.ErrGenerationInProgress, ErrCodeConflict, http.StatusConflict},
	{domain.ErrAlreadyNegotiated, ErrCodeConflict, http.StatusConflict},
	{domain.ErrSessionNotFound, ErrCodeNotFound, http.StatusNotFound},
	{domain.ErrNotFound, ErrCodeNotFound, http.StatusNotFound},
}

// FromDomain maps a domain sentinel anywhere in err's chain to an AppError.
// Existing AppErrors pass through; anything unrecognised is internal.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}
	for _, dc := range domainCodes {
		if stderrors.Is(err, dc.err) {
			return WrapError(err, dc.code, err.Error(), dc.status)
		}
	}
	return WrapError(err, ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
}
