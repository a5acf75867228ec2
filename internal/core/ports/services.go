package ports

import (
	"context"
	"image"
	"time"

	"avatarcast/internal/core/domain"
)

// EventPublisher is the cross-thread submission primitive into the broadcast scheduler.
// Submit never blocks; false means the event was dropped.
type EventPublisher interface {
	Submit(ev domain.Event) bool
}

// FrameSink accepts composited frames with a drop-on-full policy.
type FrameSink interface {
	TryPut(item domain.QueueItem[domain.VideoFrame], timeout time.Duration) bool
}

// RealtimeSession is the producer-facing view of a transport session.
type RealtimeSession interface {
	ID() string
	FPS() int
	Video() FrameSink
	State() domain.SessionState
}

type TransportService interface {
	EnsureSession(id string, fps int) (RealtimeSession, error)
	Lookup(id string) (RealtimeSession, bool)
	Negotiate(ctx context.Context, id string, offer domain.Offer, fps int) (domain.Answer, error)
	Status(id string) domain.SessionStatus
	Close(id string)
}

// FrameProducer is the inference producer plus its avatar cache.
type FrameProducer interface {
	LoadModels(ctx context.Context) bool
	Ready() bool
	PrepareAvatar(ctx context.Context, req domain.PrepareRequest) bool
	// Generate drives avatarID, or the current avatar when it is empty.
	Generate(ctx context.Context, avatarID, audioPath string, sink FrameSink, fps, batchSize int) error
}

// VideoWriter is a FrameSink backed by a video file. Close finalizes the file.
type VideoWriter interface {
	FrameSink
	Close() error
}

// VideoRenderer opens file sinks for generations that have no realtime track.
type VideoRenderer interface {
	NewWriter(outputPath, audioPath string, fps int) (VideoWriter, error)
}

// InferenceEngine is the opaque model collaborator.
type InferenceEngine interface {
	Load(ctx context.Context) error
	ExtractFeatures(ctx context.Context, audioPath string, fps int) ([]domain.AudioFeature, error)
	Infer(ctx context.Context, features []domain.AudioFeature, latents []domain.Latent) ([]image.Image, error)
}

// AvatarPreparer runs the long avatar feature extraction and returns the bundle.
type AvatarPreparer interface {
	Prepare(ctx context.Context, req domain.PrepareRequest) (*domain.PreparedAvatar, error)
}

// AnswerSynthesizer writes an answer script for a question and renders it to an audio file.
type AnswerSynthesizer interface {
	SynthesizeAnswer(ctx context.Context, question string, session *domain.LiveSession) (audioPath string, err error)
}

// NarrationSynthesizer writes the sales script for one product and voices it.
type NarrationSynthesizer interface {
	NarrateProduct(ctx context.Context, product *domain.Product, session *domain.LiveSession) (script, audioPath string, err error)
}

// ChatBridge is one per-platform ingestion worker.
type ChatBridge interface {
	Platform() domain.Platform
	Connect(ctx context.Context, identifier string) (bool, error)
	Disconnect() bool
	Drain() []domain.ChatMessage
	State() domain.ConnectionState
}

// ChatSource is a blocking client for one external chat platform.
type ChatSource interface {
	Platform() domain.Platform
	Normalize(identifier string) (string, error)
	GracePeriod() time.Duration
	Open(ctx context.Context, identifier string) (ChatStream, error)
}

// ChatStream yields batches of messages until ctx is cancelled or the source ends.
type ChatStream interface {
	Next(ctx context.Context) ([]domain.ChatMessage, error)
	Close() error
}

type MetricsService interface {
	ObserveGeneration(d time.Duration, err error)
	IncChatMessages(platform domain.Platform, n int)
}
