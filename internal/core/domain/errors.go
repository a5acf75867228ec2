package domain

import "errors"

// Client errors: surfaced synchronously to the caller, never retried.
var (
	ErrInvalidOffer         = errors.New("invalid offer")
	ErrInvalidSessionID     = errors.New("invalid session id")
	ErrInvalidFPS           = errors.New("invalid fps")
	ErrInvalidInput         = errors.New("invalid input")
	ErrAlreadyNegotiated    = errors.New("session already negotiated")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrNoAudioArtifact      = errors.New("no audio artifact")
	ErrUnsupportedPlatform  = errors.New("unsupported platform")
	ErrInvalidIdentifier    = errors.New("invalid identifier")
	ErrNotLive              = errors.New("session is not live")
	ErrNotReady             = errors.New("session is not ready")
	ErrNotPreparing         = errors.New("session is not in preparing state")
	ErrNotQuestion          = errors.New("comment is not a question")
	ErrAlreadyAnswered      = errors.New("question already answered")
)

// Lookup failures.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotFound        = errors.New("record not found")
)

// Runtime conditions inside the transport and producer.
var (
	ErrTrackUnavailable = errors.New("track unavailable")
	ErrSessionClosed    = errors.New("session closed")
	ErrQueueClosed      = errors.New("queue closed")
	ErrModelsNotLoaded  = errors.New("models not loaded")
	ErrNoCurrentAvatar  = errors.New("no current avatar")
	ErrNotConnected     = errors.New("chat source not connected")
)
