package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"

	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) EnsureSession(id string, fps int) (ports.RealtimeSession, error) {
	args := m.Called(id, fps)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.RealtimeSession), args.Error(1)
}

func (m *MockTransport) Lookup(id string) (ports.RealtimeSession, bool) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(ports.RealtimeSession), args.Bool(1)
}

func (m *MockTransport) Negotiate(ctx context.Context, id string, offer domain.Offer, fps int) (domain.Answer, error) {
	args := m.Called(ctx, id, offer, fps)
	return args.Get(0).(domain.Answer), args.Error(1)
}

func (m *MockTransport) Status(id string) domain.SessionStatus {
	args := m.Called(id)
	return args.Get(0).(domain.SessionStatus)
}

func (m *MockTransport) Close(id string) {
	m.Called(id)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) LoadModels(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockProducer) Ready() bool {
	return m.Called().Bool(0)
}

func (m *MockProducer) PrepareAvatar(ctx context.Context, req domain.PrepareRequest) bool {
	return m.Called(ctx, req).Bool(0)
}

func (m *MockProducer) Generate(ctx context.Context, avatarID, audioPath string, sink ports.FrameSink, fps, batchSize int) error {
	return m.Called(ctx, avatarID, audioPath, sink, fps, batchSize).Error(0)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) NewWriter(outputPath, audioPath string, fps int) (ports.VideoWriter, error) {
	args := m.Called(outputPath, audioPath, fps)
	w, _ := args.Get(0).(ports.VideoWriter)
	return w, args.Error(1)
}

// recordingWriter counts frames and fails Close with closeErr.
type recordingWriter struct {
	frames   atomic.Int32
	closed   atomic.Bool
	closeErr error
}

func (w *recordingWriter) TryPut(domain.QueueItem[domain.VideoFrame], time.Duration) bool {
	w.frames.Add(1)
	return true
}

func (w *recordingWriter) Close() error {
	w.closed.Store(true)
	return w.closeErr
}

type MockStreamProductRepository struct {
	mock.Mock
}

func (m *MockStreamProductRepository) Create(ctx context.Context, sp *domain.StreamProduct) error {
	return m.Called(ctx, sp).Error(0)
}

func (m *MockStreamProductRepository) GetByID(ctx context.Context, id int64) (*domain.StreamProduct, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StreamProduct), args.Error(1)
}

func (m *MockStreamProductRepository) ListBySession(ctx context.Context, sessionID int64) ([]*domain.StreamProduct, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StreamProduct), args.Error(1)
}

func (m *MockStreamProductRepository) Update(ctx context.Context, sp *domain.StreamProduct) error {
	return m.Called(ctx, sp).Error(0)
}

type MockLiveSessionRepository struct {
	mock.Mock
}

func (m *MockLiveSessionRepository) Create(ctx context.Context, s *domain.LiveSession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockLiveSessionRepository) GetByID(ctx context.Context, id int64) (*domain.LiveSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LiveSession), args.Error(1)
}

func (m *MockLiveSessionRepository) UpdateStatus(ctx context.Context, id int64, status domain.LiveSessionStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

type MockAvatarRepository struct {
	mock.Mock
}

func (m *MockAvatarRepository) Create(ctx context.Context, a *domain.Avatar) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockAvatarRepository) GetByID(ctx context.Context, id int64) (*domain.Avatar, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Avatar), args.Error(1)
}

func (m *MockAvatarRepository) MarkPrepared(ctx context.Context, id int64, prepared bool) error {
	return m.Called(ctx, id, prepared).Error(0)
}

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

type MockCommentRepository struct {
	mock.Mock
}

func (m *MockCommentRepository) Create(ctx context.Context, c *domain.Comment) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCommentRepository) GetByID(ctx context.Context, id int64) (*domain.Comment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *MockCommentRepository) ListBySession(ctx context.Context, sessionID int64, offset, limit int) ([]*domain.Comment, error) {
	args := m.Called(ctx, sessionID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Comment), args.Error(1)
}

func (m *MockCommentRepository) MarkAnswered(ctx context.Context, id int64, answerPath string) error {
	return m.Called(ctx, id, answerPath).Error(0)
}

type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) NarrateProduct(ctx context.Context, product *domain.Product, session *domain.LiveSession) (string, string, error) {
	args := m.Called(ctx, product, session)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockSynthesizer) SynthesizeAnswer(ctx context.Context, question string, session *domain.LiveSession) (string, error) {
	args := m.Called(ctx, question, session)
	return args.String(0), args.Error(1)
}

// recordingPublisher keeps every submitted event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Submit(ev domain.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type nopSink struct{}

func (nopSink) TryPut(domain.QueueItem[domain.VideoFrame], time.Duration) bool { return true }

type fakeSession struct {
	id  string
	fps int
}

func (s *fakeSession) ID() string                 { return s.id }
func (s *fakeSession) FPS() int                   { return s.fps }
func (s *fakeSession) Video() ports.FrameSink     { return nopSink{} }
func (s *fakeSession) State() domain.SessionState { return domain.SessionActive }
