package http

import (
	"context"
	"net/http"
	"strconv"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/services"
	"avatarcast/pkg/errors"

	"github.com/gin-gonic/gin"
)

// RealtimeController is the realtime half of the stream orchestrator.
type RealtimeController interface {
	StartRealtime(ctx context.Context, sessionID string, fps int) (*services.RealtimeStarted, error)
	Negotiate(ctx context.Context, sessionID string, offer domain.Offer, fps int) (domain.Answer, error)
	Status(sessionID string) services.RealtimeStatus
	Close(sessionID string)
	StartGeneration(ctx context.Context, sessionID string, streamProductID int64) (*services.GenerationStarted, error)
}

// LiveSessionController is the scheduled-session half of the stream orchestrator.
type LiveSessionController interface {
	PrepareSession(ctx context.Context, id int64) error
	StartSession(ctx context.Context, id int64) error
	StopSession(ctx context.Context, id int64) error
	AnswerQuestion(ctx context.Context, liveSessionID, commentID int64, realtimeSessionID string) error
}

type ChatController interface {
	ListPlatforms() []domain.Platform
	Connect(ctx context.Context, platform domain.Platform, identifier string) (bool, error)
	Disconnect() bool
	CurrentPlatform() domain.Platform
	IsConnected() bool
	DrainComments() []domain.ChatMessage
	ImportantComments() []domain.ChatMessage
}

type CommentController interface {
	Create(ctx context.Context, sessionID int64, req services.CreateCommentRequest) (*domain.Comment, error)
	List(ctx context.Context, sessionID int64, offset, limit int) ([]*domain.Comment, error)
	UnansweredQuestions(ctx context.Context, sessionID int64) ([]*domain.Comment, error)
}

var (
	_ RealtimeController    = (*services.StreamOrchestrator)(nil)
	_ LiveSessionController = (*services.StreamOrchestrator)(nil)
	_ ChatController        = (*services.ChatService)(nil)
	_ CommentController     = (*services.CommentService)(nil)
)

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(errors.NewInvalidInputError(name + " must be a positive integer"))
		return 0, false
	}
	return id, true
}

// queryInt returns def for a missing parameter and fails the request for a malformed one.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		_ = c.Error(errors.NewInvalidInputError(name + " must be an integer"))
		return 0, false
	}
	return v, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInvalidInput, err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}
