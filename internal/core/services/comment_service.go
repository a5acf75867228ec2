package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/retry"
	"avatarcast/pkg/validation"

	"go.uber.org/zap"
)

type CreateCommentRequest struct {
	Username   string `json:"username" binding:"required"`
	Message    string `json:"message" binding:"required"`
	IsQuestion *bool  `json:"is_question,omitempty"`
}

// CommentService persists API comments and announces them to every viewer.
type CommentService struct {
	comments  ports.CommentRepository
	sessions  ports.LiveSessionRepository
	publisher ports.EventPublisher
	retry     retry.Config
	logger    *zap.SugaredLogger
}

func NewCommentService(
	comments ports.CommentRepository,
	sessions ports.LiveSessionRepository,
	publisher ports.EventPublisher,
	retryCfg retry.Config,
	logger *zap.SugaredLogger,
) *CommentService {
	retryCfg.NonRetryable = append(retryCfg.NonRetryable, domain.ErrNotFound)
	return &CommentService{
		comments:  comments,
		sessions:  sessions,
		publisher: publisher,
		retry:     retryCfg,
		logger:    logger,
	}
}

// Create stores the comment and broadcasts new_comment. A comment is a question
// when the caller says so or, if unspecified, when it contains '?'.
func (s *CommentService) Create(ctx context.Context, sessionID int64, req CreateCommentRequest) (*domain.Comment, error) {
	if err := validation.ValidateStringLength(req.Username, 1, 64, "username"); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := validation.ValidateStringLength(req.Message, 1, 1000, "message"); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if _, err := retry.RetryWithResult(ctx, s.retry, func() (*domain.LiveSession, error) {
		return s.sessions.GetByID(ctx, sessionID)
	}); err != nil {
		return nil, fmt.Errorf("live session %d: %w", sessionID, err)
	}

	c := &domain.Comment{
		SessionID:  sessionID,
		Username:   strings.TrimSpace(req.Username),
		Message:    strings.TrimSpace(req.Message),
		Timestamp:  time.Now().UTC(),
		IsQuestion: strings.Contains(req.Message, "?"),
	}
	if req.IsQuestion != nil {
		c.IsQuestion = *req.IsQuestion
	}

	if err := retry.Retry(ctx, s.retry, func() error {
		return s.comments.Create(ctx, c)
	}); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	if !s.publisher.Submit(domain.NewCommentEvent(c)) {
		s.logger.Warnw("new_comment event dropped", "comment_id", c.ID, "session_id", sessionID)
	}
	return c, nil
}

func (s *CommentService) List(ctx context.Context, sessionID int64, offset, limit int) ([]*domain.Comment, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return retry.RetryWithResult(ctx, s.retry, func() ([]*domain.Comment, error) {
		return s.comments.ListBySession(ctx, sessionID, max(offset, 0), limit)
	})
}

// UnansweredQuestions scans the most recent thousand comments.
func (s *CommentService) UnansweredQuestions(ctx context.Context, sessionID int64) ([]*domain.Comment, error) {
	all, err := s.List(ctx, sessionID, 0, 1000)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Comment, 0, len(all))
	for _, c := range all {
		if c.IsQuestion && !c.Answered {
			out = append(out, c)
		}
	}
	return out, nil
}
