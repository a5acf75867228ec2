package reliability

import (
	"context"
	"image"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/circuitbreaker"
	"avatarcast/pkg/retry"

	"go.uber.org/zap"
)

// Engine is the full remote inference surface.
type Engine interface {
	ports.InferenceEngine
	ports.AvatarPreparer
	ports.AnswerSynthesizer
	ports.NarrationSynthesizer
	Ping(ctx context.Context) error
}

// InferenceGuard puts one circuit breaker in front of the inference service so
// a dead backend fails generations fast instead of holding workers for the
// request timeout. Short idempotent calls are also retried.
type InferenceGuard struct {
	engine  Engine
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
	logger  *zap.SugaredLogger
}

var _ Engine = (*InferenceGuard)(nil)

func NewInferenceGuard(engine Engine, cbConfig circuitbreaker.Config, retryConfig retry.Config, logger *zap.SugaredLogger) *InferenceGuard {
	// An open breaker must not be retried into.
	retryConfig.NonRetryable = append([]error{circuitbreaker.ErrOpen, context.Canceled}, retryConfig.NonRetryable...)
	g := &InferenceGuard{
		engine:  engine,
		breaker: circuitbreaker.New(cbConfig),
		retry:   retryConfig,
		logger:  logger,
	}

	g.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("inference circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return g
}

func (g *InferenceGuard) State() circuitbreaker.State {
	return g.breaker.GetState()
}

// Ping bypasses the breaker so readiness reflects the backend itself.
func (g *InferenceGuard) Ping(ctx context.Context) error {
	return g.engine.Ping(ctx)
}

func (g *InferenceGuard) Load(ctx context.Context) error {
	return retry.Retry(ctx, g.retry, func() error {
		return g.breaker.Execute(ctx, func() error {
			return g.engine.Load(ctx)
		})
	})
}

func (g *InferenceGuard) ExtractFeatures(ctx context.Context, audioPath string, fps int) ([]domain.AudioFeature, error) {
	return retry.RetryWithResult(ctx, g.retry, func() ([]domain.AudioFeature, error) {
		return circuitbreaker.Call(ctx, g.breaker, func() ([]domain.AudioFeature, error) {
			return g.engine.ExtractFeatures(ctx, audioPath, fps)
		})
	})
}

func (g *InferenceGuard) Infer(ctx context.Context, features []domain.AudioFeature, latents []domain.Latent) ([]image.Image, error) {
	return circuitbreaker.Call(ctx, g.breaker, func() ([]image.Image, error) {
		return g.engine.Infer(ctx, features, latents)
	})
}

func (g *InferenceGuard) Prepare(ctx context.Context, req domain.PrepareRequest) (*domain.PreparedAvatar, error) {
	return circuitbreaker.Call(ctx, g.breaker, func() (*domain.PreparedAvatar, error) {
		return g.engine.Prepare(ctx, req)
	})
}

func (g *InferenceGuard) SynthesizeAnswer(ctx context.Context, question string, session *domain.LiveSession) (string, error) {
	return circuitbreaker.Call(ctx, g.breaker, func() (string, error) {
		return g.engine.SynthesizeAnswer(ctx, question, session)
	})
}

func (g *InferenceGuard) NarrateProduct(ctx context.Context, product *domain.Product, session *domain.LiveSession) (string, string, error) {
	type narration struct{ script, audio string }
	n, err := circuitbreaker.Call(ctx, g.breaker, func() (narration, error) {
		script, audio, err := g.engine.NarrateProduct(ctx, product, session)
		return narration{script, audio}, err
	})
	return n.script, n.audio, err
}
