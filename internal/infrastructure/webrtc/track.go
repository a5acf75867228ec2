package webrtc

import (
	"context"
	"errors"
	"io"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/infrastructure/media"
	"avatarcast/internal/infrastructure/monitoring"

	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

const maxPumpLag = time.Second

// Sample is one encoded media unit with its presentation time.
type Sample struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
}

// SampleWriter is the outbound side of a local track.
type SampleWriter interface {
	WriteSample(s pionmedia.Sample) error
}

// TrackAdapter pulls items from a media queue and turns them into timed samples.
// PTS advances one tick per returned sample; items that fail to encode are skipped.
type TrackAdapter[T any] struct {
	kind    string
	queue   *media.Queue[T]
	encode  func(T) ([]byte, error)
	tick    time.Duration
	counter uint64

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

func NewTrackAdapter[T any](
	kind string,
	queue *media.Queue[T],
	encode func(T) ([]byte, error),
	tick time.Duration,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *TrackAdapter[T] {
	return &TrackAdapter[T]{
		kind:    kind,
		queue:   queue,
		encode:  encode,
		tick:    tick,
		metrics: metrics,
		logger:  logger,
	}
}

// Recv blocks for the next item. A closed queue yields ErrTrackUnavailable.
func (a *TrackAdapter[T]) Recv(ctx context.Context) (Sample, error) {
	for {
		item, err := a.queue.Take(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrQueueClosed) {
				return Sample{}, domain.ErrTrackUnavailable
			}
			return Sample{}, err
		}

		data, err := a.encode(item.Payload)
		if err != nil {
			a.metrics.RecordEncodeError(a.kind)
			a.logger.Warnw("failed to encode sample",
				"kind", a.kind,
				"seq", item.Seq,
				"error", err,
			)
			continue
		}

		// Only returned samples take a tick.
		pts := a.tick * time.Duration(a.counter)
		a.counter++
		return Sample{Data: data, PTS: pts, Duration: a.tick}, nil
	}
}

// Pump writes samples to track at their presentation time until the queue closes
// or ctx is cancelled. onEnd runs once when the track became unavailable.
func (a *TrackAdapter[T]) Pump(ctx context.Context, track SampleWriter, onEnd func()) {
	start := time.Now()
	for {
		sample, err := a.Recv(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrTrackUnavailable) && onEnd != nil {
				onEnd()
			}
			if ctx.Err() == nil && !errors.Is(err, domain.ErrTrackUnavailable) {
				a.logger.Warnw("track pump stopped", "kind", a.kind, "error", err)
			}
			return
		}

		wait := time.Until(start.Add(sample.PTS))
		if wait < -maxPumpLag {
			// The producer stalled; restart the clock instead of bursting.
			start = time.Now().Add(-sample.PTS)
			wait = 0
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		err = track.WriteSample(pionmedia.Sample{
			Data:      sample.Data,
			Duration:  sample.Duration,
			Timestamp: start.Add(sample.PTS),
		})
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			a.logger.Debugw("failed to write sample", "kind", a.kind, "error", err)
			continue
		}
		a.metrics.RecordSampleSent(a.kind)
	}
}
