package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	grace   time.Duration
	openErr error
	block   bool
	deaf    bool
	msgs    chan []domain.ChatMessage
	opened  chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		grace:  time.Second,
		msgs:   make(chan []domain.ChatMessage, 16),
		opened: make(chan string, 4),
	}
}

func (s *fakeSource) Platform() domain.Platform  { return domain.PlatformYouTube }
func (s *fakeSource) GracePeriod() time.Duration { return s.grace }

func (s *fakeSource) Normalize(identifier string) (string, error) {
	if identifier == "" {
		return "", errors.New("empty")
	}
	return identifier, nil
}

func (s *fakeSource) Open(ctx context.Context, identifier string) (ports.ChatStream, error) {
	s.opened <- identifier
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &fakeStream{msgs: s.msgs, deaf: s.deaf}, nil
}

type fakeStream struct {
	msgs chan []domain.ChatMessage
	deaf bool
}

// Next on a deaf stream ignores cancellation, like a client stuck in a read.
func (s *fakeStream) Next(ctx context.Context) ([]domain.ChatMessage, error) {
	if s.deaf {
		m, ok := <-s.msgs
		if !ok {
			return nil, errors.New("stream ended")
		}
		return m, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-s.msgs:
		if !ok {
			return nil, errors.New("stream ended")
		}
		return m, nil
	}
}

func (s *fakeStream) Close() error { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	reject bool
	events []domain.Event
}

func (p *fakePublisher) Submit(ev domain.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false
	}
	p.events = append(p.events, ev)
	return true
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func msg(text string) domain.ChatMessage {
	return domain.NewChatMessage(domain.PlatformYouTube, "viewer", text, time.Now())
}

func TestBridge_ConnectForwardsAndBuffers(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	b := NewBridge(src, pub, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())
	defer b.Disconnect()

	ok, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.StateConnected, b.State())

	src.msgs <- []domain.ChatMessage{msg("hello"), msg("how much is it?")}

	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.EventLiveComment, pub.events[0].Type)

	drained := b.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "hello", drained[0].Message)
	assert.Empty(t, b.Drain())
}

func TestBridge_ConnectWhenAlreadyConnected(t *testing.T) {
	src := newFakeSource()
	b := NewBridge(src, &fakePublisher{}, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())
	defer b.Disconnect()

	ok, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Connect(context.Background(), "other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", b.Identifier())
	assert.Len(t, src.opened, 1)
}

func TestBridge_BufferKeepsNewest(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	b := NewBridge(src, pub, 3, time.Second, nil, zaptest.NewLogger(t).Sugar())
	defer b.Disconnect()

	_, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)

	batch := make([]domain.ChatMessage, 5)
	for i := range batch {
		batch[i] = msg(fmt.Sprintf("m%d", i))
	}
	src.msgs <- batch
	assert.Eventually(t, func() bool { return pub.count() == 5 }, time.Second, 5*time.Millisecond)

	drained := b.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, "m2", drained[0].Message)
	assert.Equal(t, "m4", drained[2].Message)
}

func TestBridge_PublishFailureKeepsReading(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{reject: true}
	b := NewBridge(src, pub, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())
	defer b.Disconnect()

	_, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)

	src.msgs <- []domain.ChatMessage{msg("one")}
	src.msgs <- []domain.ChatMessage{msg("two")}

	assert.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.buffer) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StateConnected, b.State())
}

func TestBridge_OpenFailureReportsFalse(t *testing.T) {
	src := newFakeSource()
	src.openErr = domain.ErrNotLive
	b := NewBridge(src, &fakePublisher{}, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())

	ok, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.StateDisconnected, b.State())
}

func TestBridge_GracePeriodExpires(t *testing.T) {
	src := newFakeSource()
	src.grace = 50 * time.Millisecond
	src.block = true
	b := NewBridge(src, &fakePublisher{}, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())

	start := time.Now()
	ok, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, domain.StateDisconnected, b.State())
}

func TestBridge_InvalidIdentifier(t *testing.T) {
	b := NewBridge(newFakeSource(), &fakePublisher{}, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())

	ok, err := b.Connect(context.Background(), "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestBridge_DisconnectIsIdempotent(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	b := NewBridge(src, pub, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())

	assert.True(t, b.Disconnect())

	_, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)
	src.msgs <- []domain.ChatMessage{msg("pending")}
	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, b.Disconnect())
	assert.True(t, b.Disconnect())
	assert.Equal(t, domain.StateDisconnected, b.State())
	assert.Empty(t, b.Drain())

	ok, err := b.Connect(context.Background(), "again")
	require.NoError(t, err)
	assert.True(t, ok)
	b.Disconnect()
}

func TestBridge_StreamEndDisconnects(t *testing.T) {
	src := newFakeSource()
	b := NewBridge(src, &fakePublisher{}, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())

	_, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)
	close(src.msgs)

	assert.Eventually(t, func() bool { return b.State() == domain.StateDisconnected }, time.Second, 5*time.Millisecond)
}

func TestBridge_SanitizesAndSkipsBlankMessages(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	b := NewBridge(src, pub, 10, time.Second, nil, zaptest.NewLogger(t).Sugar())
	defer b.Disconnect()

	_, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)

	noisy := msg("  price\x07 please  ")
	noisy.Author = "\x00viewer "
	src.msgs <- []domain.ChatMessage{msg(" \t "), noisy}
	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	drained := b.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, "price please", drained[0].Message)
	assert.Equal(t, "viewer", drained[0].Author)
}

func TestBridge_StaleWorkerDropsLateMessages(t *testing.T) {
	src := newFakeSource()
	src.deaf = true
	pub := &fakePublisher{}
	b := NewBridge(src, pub, 10, 20*time.Millisecond, nil, zaptest.NewLogger(t).Sugar())

	ok, err := b.Connect(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, ok)

	// The worker is stuck in Next, so the join times out.
	assert.True(t, b.Disconnect())
	assert.Equal(t, domain.StateDisconnected, b.State())

	src.msgs <- []domain.ChatMessage{msg("late"), msg("later")}
	close(src.msgs)

	assert.Never(t, func() bool { return pub.count() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, b.Drain())
	assert.Equal(t, domain.StateDisconnected, b.State())
}
