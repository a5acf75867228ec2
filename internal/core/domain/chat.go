package domain

import "time"

type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTikTok  Platform = "tiktok"
)

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ChatMessage is one inbound comment from an external chat platform.
type ChatMessage struct {
	ID        string    `json:"id"`
	Platform  Platform  `json:"platform"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Priority  Priority  `json:"priority,omitempty"`
}

// NewChatMessage stamps the message and derives its id from author and timestamp.
func NewChatMessage(p Platform, author, message string, at time.Time) ChatMessage {
	return ChatMessage{
		ID:        author + at.Format(time.RFC3339Nano),
		Platform:  p,
		Author:    author,
		Message:   message,
		Timestamp: at,
	}
}
