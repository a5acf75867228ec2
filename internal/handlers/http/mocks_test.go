package http

import (
	"context"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/services"

	"github.com/stretchr/testify/mock"
)

type MockRealtime struct{ mock.Mock }

func (m *MockRealtime) StartRealtime(ctx context.Context, sessionID string, fps int) (*services.RealtimeStarted, error) {
	args := m.Called(ctx, sessionID, fps)
	res, _ := args.Get(0).(*services.RealtimeStarted)
	return res, args.Error(1)
}

func (m *MockRealtime) Negotiate(ctx context.Context, sessionID string, offer domain.Offer, fps int) (domain.Answer, error) {
	args := m.Called(ctx, sessionID, offer, fps)
	return args.Get(0).(domain.Answer), args.Error(1)
}

func (m *MockRealtime) Status(sessionID string) services.RealtimeStatus {
	return m.Called(sessionID).Get(0).(services.RealtimeStatus)
}

func (m *MockRealtime) Close(sessionID string) {
	m.Called(sessionID)
}

func (m *MockRealtime) StartGeneration(ctx context.Context, sessionID string, streamProductID int64) (*services.GenerationStarted, error) {
	args := m.Called(ctx, sessionID, streamProductID)
	res, _ := args.Get(0).(*services.GenerationStarted)
	return res, args.Error(1)
}

type MockLiveSessions struct{ mock.Mock }

func (m *MockLiveSessions) PrepareSession(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLiveSessions) StartSession(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLiveSessions) StopSession(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLiveSessions) AnswerQuestion(ctx context.Context, liveSessionID, commentID int64, realtimeSessionID string) error {
	return m.Called(ctx, liveSessionID, commentID, realtimeSessionID).Error(0)
}

type MockChat struct{ mock.Mock }

func (m *MockChat) ListPlatforms() []domain.Platform {
	return m.Called().Get(0).([]domain.Platform)
}

func (m *MockChat) Connect(ctx context.Context, platform domain.Platform, identifier string) (bool, error) {
	args := m.Called(ctx, platform, identifier)
	return args.Bool(0), args.Error(1)
}

func (m *MockChat) Disconnect() bool {
	return m.Called().Bool(0)
}

func (m *MockChat) CurrentPlatform() domain.Platform {
	return m.Called().Get(0).(domain.Platform)
}

func (m *MockChat) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockChat) DrainComments() []domain.ChatMessage {
	return m.Called().Get(0).([]domain.ChatMessage)
}

func (m *MockChat) ImportantComments() []domain.ChatMessage {
	return m.Called().Get(0).([]domain.ChatMessage)
}

type MockComments struct{ mock.Mock }

func (m *MockComments) Create(ctx context.Context, sessionID int64, req services.CreateCommentRequest) (*domain.Comment, error) {
	args := m.Called(ctx, sessionID, req)
	res, _ := args.Get(0).(*domain.Comment)
	return res, args.Error(1)
}

func (m *MockComments) List(ctx context.Context, sessionID int64, offset, limit int) ([]*domain.Comment, error) {
	args := m.Called(ctx, sessionID, offset, limit)
	res, _ := args.Get(0).([]*domain.Comment)
	return res, args.Error(1)
}

func (m *MockComments) UnansweredQuestions(ctx context.Context, sessionID int64) ([]*domain.Comment, error) {
	args := m.Called(ctx, sessionID)
	res, _ := args.Get(0).([]*domain.Comment)
	return res, args.Error(1)
}

type fixedCount int

func (c fixedCount) Count() int { return int(c) }
