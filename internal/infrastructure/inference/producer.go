package inference

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/internal/infrastructure/monitoring"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// faceBatch is one inference result: faces for output frames start..start+len-1.
type faceBatch struct {
	start int
	faces []image.Image
}

// Producer turns an audio artifact into composited frames for a realtime session.
type Producer struct {
	engine      ports.InferenceEngine
	avatars     *AvatarCache
	pushTimeout time.Duration

	loadMu sync.Mutex
	loaded bool

	// genMu allows one generation per process.
	genMu sync.Mutex

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

var _ ports.FrameProducer = (*Producer)(nil)

func NewProducer(
	engine ports.InferenceEngine,
	avatars *AvatarCache,
	pushTimeout time.Duration,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *Producer {
	if pushTimeout <= 0 {
		pushTimeout = 100 * time.Millisecond
	}
	return &Producer{
		engine:      engine,
		avatars:     avatars,
		pushTimeout: pushTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// LoadModels loads the model set once. Failures are logged and leave the
// producer not ready, so a later call retries.
func (p *Producer) LoadModels(ctx context.Context) bool {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if p.loaded {
		return true
	}

	start := time.Now()
	if err := p.engine.Load(ctx); err != nil {
		p.logger.Errorw("failed to load models", "error", err)
		return false
	}
	p.loaded = true
	p.logger.Infow("models loaded", "duration", time.Since(start))
	return true
}

func (p *Producer) Ready() bool {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	return p.loaded
}

func (p *Producer) PrepareAvatar(ctx context.Context, req domain.PrepareRequest) bool {
	return p.avatars.Prepare(ctx, req)
}

// Generate runs feature extraction, batched inference and compositing for the
// prepared avatar avatarID (the current one when empty), pushing every frame into
// sink with the drop-on-full policy. It blocks until the audio is exhausted or a
// stage fails. A second concurrent call gets ErrGenerationInProgress.
func (p *Producer) Generate(ctx context.Context, avatarID, audioPath string, sink ports.FrameSink, fps, batchSize int) error {
	if !p.Ready() {
		return domain.ErrModelsNotLoaded
	}
	avatar := p.avatars.Current()
	if avatarID != "" {
		avatar, _ = p.avatars.Get(avatarID)
	}
	if avatar == nil {
		return domain.ErrNoCurrentAvatar
	}
	if !p.genMu.TryLock() {
		return domain.ErrGenerationInProgress
	}
	defer p.genMu.Unlock()
	if batchSize <= 0 {
		batchSize = 1
	}

	start := time.Now()
	features, err := p.engine.ExtractFeatures(ctx, audioPath, fps)
	if err != nil {
		return fmt.Errorf("feature extraction failed: %w", err)
	}
	p.logger.Infow("generation started",
		"audio", audioPath,
		"frames", len(features),
		"fps", fps,
		"batch_size", batchSize,
		"avatar_id", avatar.AvatarID,
	)

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan faceBatch, 2)

	g.Go(func() error {
		defer close(batches)
		for from := 0; from < len(features); from += batchSize {
			to := min(from+batchSize, len(features))
			latents := make([]domain.Latent, 0, to-from)
			for i := from; i < to; i++ {
				latents = append(latents, avatar.LatentCycle(i))
			}

			faces, err := p.engine.Infer(gctx, features[from:to], latents)
			if err != nil {
				return fmt.Errorf("inference failed at frame %d: %w", from, err)
			}
			if len(faces) != to-from {
				return fmt.Errorf("inference returned %d frames for a batch of %d", len(faces), to-from)
			}

			select {
			case batches <- faceBatch{start: from, faces: faces}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var pushed, dropped int
	g.Go(func() error {
		for b := range batches {
			for j, face := range b.faces {
				if closed, ok := sink.(interface{ Closed() bool }); ok && closed.Closed() {
					return domain.ErrSessionClosed
				}
				idx := b.start + j
				frame := Composite(avatar, idx, face)
				if sink.TryPut(domain.QueueItem[domain.VideoFrame]{Seq: uint64(idx), Payload: frame}, p.pushTimeout) {
					pushed++
				} else {
					dropped++
					p.metrics.RecordSampleDropped("video")
				}
			}
			if err := gctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	p.logger.Infow("generation finished",
		"audio", audioPath,
		"pushed", pushed,
		"dropped", dropped,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}
