package domain

import "time"

// SessionState is the transport lifecycle of a realtime session.
type SessionState string

const (
	SessionUnbound     SessionState = "UNBOUND"
	SessionNegotiating SessionState = "NEGOTIATING"
	SessionActive      SessionState = "ACTIVE"
	SessionClosed      SessionState = "CLOSED"
)

// SessionStatus is a read-only snapshot used for health and debugging.
type SessionStatus struct {
	Exists        bool         `json:"exists"`
	State         SessionState `json:"state,omitempty"`
	FPS           int          `json:"fps,omitempty"`
	VideoQueue    int          `json:"video_queue"`
	VideoCapacity int          `json:"video_capacity,omitempty"`
	VideoDropped  uint64       `json:"video_dropped,omitempty"`
	AudioQueue    int          `json:"audio_queue"`
	AudioEnabled  bool         `json:"audio_enabled,omitempty"`
}

// GenerationStatus tracks the producer run for one realtime session.
type GenerationStatus struct {
	IsGenerating    bool      `json:"is_generating"`
	ActiveProductID string    `json:"active_product_id,omitempty"`
	StartedAt       time.Time `json:"started_at,omitempty"`
}
