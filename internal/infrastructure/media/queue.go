package media

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"avatarcast/internal/core/domain"
)

// Item is one queued media entry.
type Item[T any] = domain.QueueItem[T]

// Pair is the per-session set of media queues. Audio is nil when the audio track is disabled.
type Pair struct {
	Video *Queue[domain.VideoFrame]
	Audio *Queue[domain.AudioSamples]
}

// NewPair sizes the video queue for fps*seconds and the audio queue for the same
// wall time in chunks of one video tick.
func NewPair(fps, seconds int, withAudio bool) Pair {
	p := Pair{Video: NewQueue[domain.VideoFrame](fps * seconds)}
	if withAudio {
		p.Audio = NewQueue[domain.AudioSamples](fps * seconds)
	}
	return p
}

// Close closes both queues.
func (p Pair) Close() {
	if p.Video != nil {
		p.Video.Close()
	}
	if p.Audio != nil {
		p.Audio.Close()
	}
}

// Queue is a bounded FIFO between one producer and one track reader.
// Put never blocks longer than its timeout; Take unblocks once the queue is closed.
type Queue[T any] struct {
	items   chan domain.QueueItem[T]
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64

	closeOnce sync.Once
}

func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items: make(chan domain.QueueItem[T], capacity),
		done:  make(chan struct{}),
	}
}

// TryPut enqueues item, waiting at most timeout for space. When the queue stays
// full the new item is discarded and false is returned.
func (q *Queue[T]) TryPut(item domain.QueueItem[T], timeout time.Duration) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.items <- item:
		return true
	default:
	}
	if timeout <= 0 {
		q.dropped.Add(1)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.items <- item:
		return true
	case <-timer.C:
		q.dropped.Add(1)
		return false
	case <-q.done:
		return false
	}
}

// PutEvictOldest enqueues item, discarding the oldest queued entries until it fits.
func (q *Queue[T]) PutEvictOldest(item domain.QueueItem[T]) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	for {
		select {
		case q.items <- item:
			return true
		default:
		}
		select {
		case <-q.items:
			q.dropped.Add(1)
		default:
		}
	}
}

// Take blocks until an item is available, ctx is done or the queue is closed.
func (q *Queue[T]) Take(ctx context.Context) (domain.QueueItem[T], error) {
	var zero domain.QueueItem[T]
	select {
	case <-q.done:
		return zero, domain.ErrQueueClosed
	default:
	}
	select {
	case it := <-q.items:
		return it, nil
	case <-q.done:
		return zero, domain.ErrQueueClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close wakes every waiter and discards queued items. Safe to call twice.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		// done first: a TryPut parked on a full queue holds the read lock.
		close(q.done)
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		for {
			select {
			case <-q.items:
			default:
				return
			}
		}
	})
}

func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *Queue[T]) Len() int        { return len(q.items) }
func (q *Queue[T]) Cap() int        { return cap(q.items) }
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
