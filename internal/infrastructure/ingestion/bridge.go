package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/utils"

	"go.uber.org/zap"
)

const (
	maxAuthorRunes  = 64
	maxMessageRunes = 500
)

// Bridge runs one chat source in its own worker goroutine, buffers what it reads
// and forwards every message to the event hub.
type Bridge struct {
	source      ports.ChatSource
	publisher   ports.EventPublisher
	bufferSize  int
	joinTimeout time.Duration

	mu         sync.Mutex
	state      domain.ConnectionState
	identifier string
	buffer     []domain.ChatMessage
	cancel     context.CancelFunc
	done       chan struct{}

	metrics ports.MetricsService
	logger  *zap.SugaredLogger
}

var _ ports.ChatBridge = (*Bridge)(nil)

func NewBridge(
	source ports.ChatSource,
	publisher ports.EventPublisher,
	bufferSize int,
	joinTimeout time.Duration,
	metrics ports.MetricsService,
	logger *zap.SugaredLogger,
) *Bridge {
	if bufferSize <= 0 {
		bufferSize = 500
	}
	if joinTimeout <= 0 {
		joinTimeout = 5 * time.Second
	}
	return &Bridge{
		source:      source,
		publisher:   publisher,
		bufferSize:  bufferSize,
		joinTimeout: joinTimeout,
		state:       domain.StateDisconnected,
		metrics:     metrics,
		logger:      logger.With("platform", source.Platform()),
	}
}

func (b *Bridge) Platform() domain.Platform {
	return b.source.Platform()
}

func (b *Bridge) State() domain.ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) Identifier() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identifier
}

// Connect starts the worker and waits up to the source's grace period for its
// handshake. The error is only set for a malformed identifier; every other
// failure is logged and reported as false.
func (b *Bridge) Connect(ctx context.Context, identifier string) (bool, error) {
	id, err := b.source.Normalize(identifier)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrInvalidIdentifier, err)
	}

	b.mu.Lock()
	switch b.state {
	case domain.StateConnected:
		b.mu.Unlock()
		return true, nil
	case domain.StateConnecting:
		b.mu.Unlock()
		return false, nil
	}
	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	connected := make(chan struct{})
	b.state = domain.StateConnecting
	b.identifier = id
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	b.logger.Infow("connecting to live chat", "identifier", id)
	go b.run(workerCtx, id, connected, done)

	timer := time.NewTimer(b.source.GracePeriod())
	defer timer.Stop()
	select {
	case <-connected:
		return true, nil
	case <-done:
		return false, nil
	case <-timer.C:
		b.logger.Warnw("live chat did not connect within grace period", "identifier", id)
	case <-ctx.Done():
	}
	b.stop(done)
	return false, nil
}

func (b *Bridge) run(ctx context.Context, id string, connected, done chan struct{}) {
	defer close(done)
	defer func() {
		b.mu.Lock()
		if b.done == done {
			b.state = domain.StateDisconnected
		}
		b.mu.Unlock()
	}()

	stream, err := b.source.Open(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Errorw("failed to open live chat", "identifier", id, "error", err)
		}
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			b.logger.Debugw("error closing chat stream", "error", err)
		}
	}()

	b.mu.Lock()
	if b.done != done {
		b.mu.Unlock()
		return
	}
	b.state = domain.StateConnected
	b.mu.Unlock()
	close(connected)
	b.logger.Infow("connected to live chat", "identifier", id)

	for {
		msgs, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Warnw("live chat stream ended", "identifier", id, "error", err)
			}
			return
		}
		for _, m := range msgs {
			m.Author = utils.TruncateString(utils.SanitizeString(m.Author), maxAuthorRunes)
			m.Message = utils.TruncateString(utils.SanitizeString(m.Message), maxMessageRunes)
			if utils.IsEmpty(m.Message) {
				continue
			}
			if !b.push(done, m) {
				// Disconnected or replaced while the worker was still reading.
				return
			}
			if !b.publisher.Submit(domain.LiveComment(m)) {
				b.logger.Warnw("failed to forward comment", "id", m.ID)
			}
		}
		if len(msgs) > 0 && b.metrics != nil {
			b.metrics.IncChatMessages(b.source.Platform(), len(msgs))
		}
	}
}

// push appends to the ring buffer, discarding the oldest message when full.
// It reports false once the run identified by done no longer owns the bridge.
func (b *Bridge) push(done chan struct{}, m domain.ChatMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != done {
		return false
	}
	if len(b.buffer) >= b.bufferSize {
		copy(b.buffer, b.buffer[1:])
		b.buffer = b.buffer[:len(b.buffer)-1]
	}
	b.buffer = append(b.buffer, m)
	return true
}

// Drain returns and clears the buffered messages, oldest first.
func (b *Bridge) Drain() []domain.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buffer
	b.buffer = nil
	if out == nil {
		return []domain.ChatMessage{}
	}
	return out
}

// Disconnect stops the worker, waits a bounded time for it and clears the
// buffer. Safe to call in any state.
func (b *Bridge) Disconnect() bool {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()

	b.stop(done)
	b.logger.Infow("disconnected from live chat")
	return true
}

func (b *Bridge) stop(done chan struct{}) {
	b.mu.Lock()
	if done != nil && b.done != done {
		// A newer run owns the bridge.
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	b.cancel = nil
	b.done = nil
	b.state = domain.StateDisconnected
	b.identifier = ""
	b.buffer = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(b.joinTimeout):
		b.logger.Warnw("chat worker did not stop in time", "timeout", b.joinTimeout)
	}
}
