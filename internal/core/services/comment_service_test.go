package services

import (
	"context"
	"testing"

	"avatarcast/internal/core/domain"
	"avatarcast/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newCommentFixture(t *testing.T) (*CommentService, *MockCommentRepository, *MockLiveSessionRepository, *recordingPublisher) {
	comments := &MockCommentRepository{}
	sessions := &MockLiveSessionRepository{}
	pub := &recordingPublisher{}
	return NewCommentService(comments, sessions, pub, retry.Config{}, zaptest.NewLogger(t).Sugar()), comments, sessions, pub
}

func TestCommentService_CreateBroadcasts(t *testing.T) {
	svc, comments, sessions, pub := newCommentFixture(t)
	sessions.On("GetByID", mock.Anything, int64(3)).Return(&domain.LiveSession{ID: 3}, nil)
	comments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Comment")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Comment).ID = 42 }).
		Return(nil)

	c, err := svc.Create(context.Background(), 3, CreateCommentRequest{Username: " An ", Message: "ship tới Huế không?"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.ID)
	assert.Equal(t, "An", c.Username)
	assert.True(t, c.IsQuestion)

	require.Equal(t, []domain.EventType{domain.EventNewComment}, pub.types())
	body, err := pub.events[0].Encode()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"id":42`)
}

func TestCommentService_CreateHonoursExplicitQuestionFlag(t *testing.T) {
	svc, comments, sessions, _ := newCommentFixture(t)
	sessions.On("GetByID", mock.Anything, int64(3)).Return(&domain.LiveSession{ID: 3}, nil)
	comments.On("Create", mock.Anything, mock.Anything).Return(nil)

	no := false
	c, err := svc.Create(context.Background(), 3, CreateCommentRequest{Username: "An", Message: "really?", IsQuestion: &no})
	require.NoError(t, err)
	assert.False(t, c.IsQuestion)
}

func TestCommentService_CreateValidation(t *testing.T) {
	svc, comments, sessions, pub := newCommentFixture(t)
	sessions.On("GetByID", mock.Anything, int64(9)).Return(nil, domain.ErrNotFound)

	_, err := svc.Create(context.Background(), 3, CreateCommentRequest{Username: "", Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Create(context.Background(), 9, CreateCommentRequest{Username: "An", Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	comments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, pub.types())
}

func TestCommentService_UnansweredQuestions(t *testing.T) {
	svc, comments, _, _ := newCommentFixture(t)
	comments.On("ListBySession", mock.Anything, int64(3), 0, 1000).Return([]*domain.Comment{
		{ID: 1, IsQuestion: true},
		{ID: 2, IsQuestion: true, Answered: true},
		{ID: 3},
	}, nil)

	qs, err := svc.UnansweredQuestions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, int64(1), qs[0].ID)
}
