package webrtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/infrastructure/media"
	"avatarcast/pkg/logger"

	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeInt(v int) ([]byte, error) {
	if v < 0 {
		return nil, errors.New("negative")
	}
	return []byte{byte(v)}, nil
}

type recordingWriter struct {
	mu      sync.Mutex
	samples []pionmedia.Sample
}

func (w *recordingWriter) WriteSample(s pionmedia.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func TestTrackAdapter_PTSAdvancesOneTickPerRecv(t *testing.T) {
	q := media.NewQueue[int](8)
	tick := 40 * time.Millisecond
	a := NewTrackAdapter("video", q, encodeInt, tick, nil, logger.NewNop())

	for i, v := range []int{1, -1, 3} {
		require.True(t, q.TryPut(domain.QueueItem[int]{Seq: uint64(i), Payload: v}, 0))
	}

	ctx := context.Background()
	first, err := a.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), first.PTS)
	assert.Equal(t, tick, first.Duration)
	assert.Equal(t, []byte{1}, first.Data)

	// The second item fails to encode and is skipped without taking a tick.
	second, err := a.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, tick, second.PTS)
	assert.Equal(t, []byte{3}, second.Data)

	require.True(t, q.TryPut(domain.QueueItem[int]{Seq: 3, Payload: 4}, 0))
	third, err := a.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*tick, third.PTS)
}

func TestTrackAdapter_ClosedQueue(t *testing.T) {
	q := media.NewQueue[int](1)
	a := NewTrackAdapter("video", q, encodeInt, time.Millisecond, nil, logger.NewNop())
	q.Close()

	_, err := a.Recv(context.Background())
	assert.ErrorIs(t, err, domain.ErrTrackUnavailable)
}

func TestTrackAdapter_PumpWritesAndEnds(t *testing.T) {
	q := media.NewQueue[int](8)
	a := NewTrackAdapter("video", q, encodeInt, time.Millisecond, nil, logger.NewNop())
	w := &recordingWriter{}

	for i := 0; i < 5; i++ {
		require.True(t, q.TryPut(domain.QueueItem[int]{Seq: uint64(i), Payload: i}, 0))
	}

	ended := make(chan struct{})
	go a.Pump(context.Background(), w, func() { close(ended) })

	require.Eventually(t, func() bool { return w.count() == 5 }, time.Second, 5*time.Millisecond)
	q.Close()

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("pump did not end after queue close")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, s := range w.samples {
		assert.Equal(t, []byte{byte(i)}, s.Data)
		assert.Equal(t, time.Millisecond, s.Duration)
	}
}

func TestTrackAdapter_PumpStopsOnCancel(t *testing.T) {
	q := media.NewQueue[int](1)
	a := NewTrackAdapter("video", q, encodeInt, time.Millisecond, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	endCalled := false
	go func() {
		a.Pump(ctx, &recordingWriter{}, func() { endCalled = true })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop on cancel")
	}
	assert.False(t, endCalled)
}
