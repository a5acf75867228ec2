package domain

import "time"

// Records handed back by the persistence collaborator. All ids are integers.

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Avatar struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	VideoPath  string    `json:"video_path"`
	BBoxShift  int       `json:"bbox_shift"`
	IsPrepared bool      `json:"is_prepared"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type LiveSessionStatus string

const (
	LiveSessionPreparing  LiveSessionStatus = "preparing"
	LiveSessionProcessing LiveSessionStatus = "processing"
	LiveSessionReady      LiveSessionStatus = "ready"
	LiveSessionLive       LiveSessionStatus = "live"
	LiveSessionCompleted  LiveSessionStatus = "completed"
	LiveSessionError      LiveSessionStatus = "error"
)

// LiveSession is one scheduled show. ForStream sessions play through a realtime
// track; the others get their product videos rendered to files.
type LiveSession struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Status    LiveSessionStatus `json:"status"`
	AvatarID  int64             `json:"avatar_id"`
	ForStream bool              `json:"for_stream"`
	StartTime *time.Time        `json:"start_time,omitempty"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
}

// StreamProduct is a product scheduled inside a live session, with its narration artifacts.
type StreamProduct struct {
	ID              int64  `json:"id"`
	SessionID       int64  `json:"session_id"`
	ProductID       int64  `json:"product_id"`
	OrderInStream   int    `json:"order_in_stream"`
	ScriptText      string `json:"script_text,omitempty"`
	AudioPath       string `json:"audio_path,omitempty"`
	VideoPath       string `json:"video_path,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	IsProcessed     bool   `json:"is_processed"`
}

type Comment struct {
	ID              int64     `json:"id"`
	SessionID       int64     `json:"session_id"`
	Username        string    `json:"username"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
	IsQuestion      bool      `json:"is_question"`
	Answered        bool      `json:"answered"`
	AnswerVideoPath string    `json:"answer_video_path,omitempty"`
}
