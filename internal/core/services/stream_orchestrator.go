package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/retry"
	"avatarcast/pkg/tracing"
	"avatarcast/pkg/validation"

	"go.uber.org/zap"
)

type OrchestratorConfig struct {
	DefaultFPS int
	BatchSize  int
	// StaticDir is served under /outputs; artifact paths below it become URLs.
	StaticDir string
	Retry     retry.Config
}

type RealtimeStarted struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	FPS       int    `json:"fps"`
}

type GenerationStarted struct {
	Status   string `json:"status"`
	AudioURL string `json:"audio_url"`
	FPS      int    `json:"fps"`
	Duration int    `json:"duration"`
}

type RealtimeStatus struct {
	domain.SessionStatus
	Generation domain.GenerationStatus `json:"generation"`
}

// StreamOrchestrator ties realtime sessions, avatar warm-up and producer
// dispatch together. Long work runs on worker goroutines that report back
// only through the event publisher.
type StreamOrchestrator struct {
	transport ports.TransportService
	producer  ports.FrameProducer
	publisher ports.EventPublisher
	repos     ports.Repositories
	narrator  ports.NarrationSynthesizer
	answers   ports.AnswerSynthesizer
	renderer  ports.VideoRenderer
	tracker   *GenerationTracker
	cfg       OrchestratorConfig
	metrics   ports.MetricsService
	logger    *zap.SugaredLogger

	// gate admits one producer run per process. Warm-up makes an avatar
	// current, so it is held from warm-up through the end of generation.
	gate chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStreamOrchestrator(
	transport ports.TransportService,
	producer ports.FrameProducer,
	publisher ports.EventPublisher,
	repos ports.Repositories,
	narrator ports.NarrationSynthesizer,
	answers ports.AnswerSynthesizer,
	renderer ports.VideoRenderer,
	tracker *GenerationTracker,
	cfg OrchestratorConfig,
	metrics ports.MetricsService,
	logger *zap.SugaredLogger,
) *StreamOrchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = 25
	}
	cfg.Retry.NonRetryable = append(cfg.Retry.NonRetryable, domain.ErrNotFound)
	if tracker == nil {
		tracker = NewGenerationTracker()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &StreamOrchestrator{
		transport: transport,
		producer:  producer,
		publisher: publisher,
		repos:     repos,
		narrator:  narrator,
		answers:   answers,
		renderer:  renderer,
		tracker:   tracker,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		gate:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (o *StreamOrchestrator) StartRealtime(ctx context.Context, sessionID string, fps int) (*RealtimeStarted, error) {
	if fps <= 0 {
		fps = o.cfg.DefaultFPS
	}
	if err := validation.ValidateFPS(fps); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFPS, err)
	}
	sess, err := o.transport.EnsureSession(sessionID, fps)
	if err != nil {
		return nil, err
	}
	o.logger.Infow("realtime session started", "session_id", sessionID, "fps", sess.FPS())
	return &RealtimeStarted{Status: "realtime_started", SessionID: sess.ID(), FPS: sess.FPS()}, nil
}

func (o *StreamOrchestrator) Negotiate(ctx context.Context, sessionID string, offer domain.Offer, fps int) (domain.Answer, error) {
	ctx, span := tracing.TraceNegotiation(ctx, sessionID)
	defer span.End()

	answer, err := o.transport.Negotiate(ctx, sessionID, offer, fps)
	if err != nil {
		tracing.RecordError(ctx, err)
		return domain.Answer{}, err
	}
	return answer, nil
}

func (o *StreamOrchestrator) Status(sessionID string) RealtimeStatus {
	return RealtimeStatus{
		SessionStatus: o.transport.Status(sessionID),
		Generation:    o.tracker.Status(sessionID),
	}
}

// Close tears the session down. A running generation sees its sink closed and exits.
func (o *StreamOrchestrator) Close(sessionID string) {
	o.transport.Close(sessionID)
	o.tracker.Forget(sessionID)
}

// StartGeneration validates the request synchronously and then runs the
// producer for one stream product on a worker goroutine.
func (o *StreamOrchestrator) StartGeneration(ctx context.Context, sessionID string, streamProductID int64) (*GenerationStarted, error) {
	sess, ok := o.transport.Lookup(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if o.tracker.Status(sessionID).IsGenerating {
		return nil, domain.ErrGenerationInProgress
	}

	sp, err := retry.RetryWithResult(ctx, o.cfg.Retry, func() (*domain.StreamProduct, error) {
		return o.repos.StreamProducts.GetByID(ctx, streamProductID)
	})
	if err != nil {
		return nil, fmt.Errorf("stream product %d: %w", streamProductID, err)
	}
	if sp.AudioPath == "" {
		return nil, fmt.Errorf("stream product %d: %w", sp.ID, domain.ErrNoAudioArtifact)
	}
	avatar, err := o.sessionAvatar(ctx, sp.SessionID)
	if err != nil {
		return nil, err
	}

	if !o.tracker.TryBegin(sessionID, strconv.FormatInt(sp.ID, 10)) {
		return nil, domain.ErrGenerationInProgress
	}
	if !o.tryAcquire() {
		o.tracker.End(sessionID)
		return nil, domain.ErrGenerationInProgress
	}

	o.wg.Add(1)
	go o.runGeneration(sess, sp, avatar)

	return &GenerationStarted{
		Status:   "generation_started",
		AudioURL: o.ArtifactURL(sp.AudioPath),
		FPS:      sess.FPS(),
		Duration: sp.DurationSeconds,
	}, nil
}

func (o *StreamOrchestrator) sessionAvatar(ctx context.Context, liveSessionID int64) (*domain.Avatar, error) {
	live, err := o.liveSession(ctx, liveSessionID)
	if err != nil {
		return nil, err
	}
	avatar, err := retry.RetryWithResult(ctx, o.cfg.Retry, func() (*domain.Avatar, error) {
		return o.repos.Avatars.GetByID(ctx, live.AvatarID)
	})
	if err != nil {
		return nil, fmt.Errorf("avatar %d: %w", live.AvatarID, err)
	}
	return avatar, nil
}

func (o *StreamOrchestrator) runGeneration(sess ports.RealtimeSession, sp *domain.StreamProduct, avatar *domain.Avatar) {
	defer o.wg.Done()
	defer o.tracker.End(sess.ID())
	defer o.release()

	ctx, span := tracing.TraceGeneration(o.ctx, sess.ID(), sp.ID)
	defer span.End()

	log := o.logger.With("session_id", sess.ID(), "stream_product_id", sp.ID)
	log.Infow("generation started", "audio", sp.AudioPath, "avatar", avatar.ID)

	start := time.Now()
	err := o.generate(ctx, sess.Video(), sess.FPS(), sp.AudioPath, avatar)
	if o.metrics != nil {
		o.metrics.ObserveGeneration(time.Since(start), err)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		log.Errorw("generation failed", "error", err)
		o.publisher.Submit(domain.SessionError(sess.ID(), "Generation failed: "+err.Error()))
		return
	}
	log.Infow("generation finished", "duration", time.Since(start))
}

func (o *StreamOrchestrator) tryAcquire() bool {
	select {
	case o.gate <- struct{}{}:
		return true
	default:
		return false
	}
}

func (o *StreamOrchestrator) acquire(ctx context.Context) error {
	select {
	case o.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *StreamOrchestrator) release() {
	<-o.gate
}

// exclusive runs fn once the producer is free.
func (o *StreamOrchestrator) exclusive(ctx context.Context, fn func() error) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()
	return fn()
}

// generate loads models, prepares avatar and pushes its frames into sink.
// The caller holds the gate.
func (o *StreamOrchestrator) generate(ctx context.Context, sink ports.FrameSink, fps int, audioPath string, avatar *domain.Avatar) error {
	if !o.producer.LoadModels(ctx) {
		return domain.ErrModelsNotLoaded
	}
	if err := o.warmAvatar(ctx, avatar); err != nil {
		return err
	}
	return o.producer.Generate(ctx, domain.AvatarKey(avatar.ID), audioPath, sink, fps, o.cfg.BatchSize)
}

// render generates into a video file muxed with audioPath. The caller holds the gate.
func (o *StreamOrchestrator) render(ctx context.Context, avatar *domain.Avatar, audioPath, outputPath string) (string, error) {
	if o.renderer == nil {
		return "", errors.New("video rendering is not configured")
	}
	w, err := o.renderer.NewWriter(outputPath, audioPath, o.cfg.DefaultFPS)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(outputPath), err)
	}
	err = o.generate(ctx, w, o.cfg.DefaultFPS, audioPath, avatar)
	// A writer that failed mid-render reports itself closed to the producer.
	if cerr := w.Close(); cerr != nil && (err == nil || errors.Is(err, domain.ErrSessionClosed)) {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", filepath.Base(outputPath), err)
	}
	return outputPath, nil
}

func (o *StreamOrchestrator) videoPath(kind string, liveSessionID, id int64) string {
	return filepath.Join(o.cfg.StaticDir, "videos", fmt.Sprintf("%s_%d_%d.mp4", kind, liveSessionID, id))
}

func (o *StreamOrchestrator) warmAvatar(ctx context.Context, avatar *domain.Avatar) error {
	req := domain.PrepareRequest{
		AvatarID:         domain.AvatarKey(avatar.ID),
		SourcePath:       avatar.VideoPath,
		BBoxShift:        avatar.BBoxShift,
		NeedsPreparation: !avatar.IsPrepared,
	}
	if !o.producer.PrepareAvatar(ctx, req) {
		return fmt.Errorf("avatar %d: preparation failed", avatar.ID)
	}
	if avatar.IsPrepared {
		return nil
	}
	err := retry.Retry(ctx, o.cfg.Retry, func() error {
		return o.repos.Avatars.MarkPrepared(ctx, avatar.ID, true)
	})
	if err != nil {
		o.logger.Warnw("failed to persist avatar prepared flag", "avatar_id", avatar.ID, "error", err)
		return nil
	}
	avatar.IsPrepared = true
	return nil
}

// ArtifactURL maps a file under the static directory to its public path.
func (o *StreamOrchestrator) ArtifactURL(path string) string {
	if path == "" {
		return ""
	}
	if o.cfg.StaticDir != "" {
		if rel, err := filepath.Rel(o.cfg.StaticDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			return "/outputs/" + filepath.ToSlash(rel)
		}
	}
	return "/outputs/" + filepath.Base(path)
}

// Shutdown cancels every worker and waits for them until ctx expires.
func (o *StreamOrchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}

func (o *StreamOrchestrator) liveSession(ctx context.Context, id int64) (*domain.LiveSession, error) {
	live, err := retry.RetryWithResult(ctx, o.cfg.Retry, func() (*domain.LiveSession, error) {
		return o.repos.Sessions.GetByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("live session %d: %w", id, err)
	}
	return live, nil
}

func (o *StreamOrchestrator) setStatus(ctx context.Context, id int64, status domain.LiveSessionStatus) error {
	err := retry.Retry(ctx, o.cfg.Retry, func() error {
		return o.repos.Sessions.UpdateStatus(ctx, id, status)
	})
	if err != nil {
		return fmt.Errorf("live session %d: set status %s: %w", id, status, err)
	}
	return nil
}
