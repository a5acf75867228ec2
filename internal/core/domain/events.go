package domain

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventNewComment         EventType = "new_comment"
	EventSessionReady       EventType = "session_ready"
	EventSessionError       EventType = "session_error"
	EventSessionStarted     EventType = "session_started"
	EventSessionStopped     EventType = "session_stopped"
	EventQuestionProcessing EventType = "question_processing"
	EventQuestionAnswered   EventType = "question_answered"
	EventQuestionError      EventType = "question_error"
	EventLiveComment        EventType = "live_comment"
)

// Event is an immutable tagged record sent to every hub connection as one JSON object.
type Event struct {
	Type   EventType
	Fields map[string]any
}

func newEvent(t EventType, fields map[string]any) Event {
	return Event{Type: t, Fields: fields}
}

// Encode renders the event as a JSON object whose "type" key always carries Type.
func (e Event) Encode() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["type"] = e.Type
	return json.Marshal(out)
}

// NewCommentEvent announces a comment persisted through the API.
func NewCommentEvent(c *Comment) Event {
	return newEvent(EventNewComment, map[string]any{
		"session_id": c.SessionID,
		"comment": map[string]any{
			"id":                c.ID,
			"username":          c.Username,
			"message":           c.Message,
			"is_question":       c.IsQuestion,
			"answered":          c.Answered,
			"answer_video_path": c.AnswerVideoPath,
			"timestamp":         c.Timestamp.Format(time.RFC3339),
		},
	})
}

// SessionReady is emitted when a live session finished preparing. The session
// id is either the integer live-session id or the realtime session string.
func SessionReady(sessionID any, message string) Event {
	return newEvent(EventSessionReady, map[string]any{"session_id": sessionID, "message": message})
}

func SessionError(sessionID any, message string) Event {
	return newEvent(EventSessionError, map[string]any{"session_id": sessionID, "message": message})
}

func SessionStarted(sessionID int64) Event {
	return newEvent(EventSessionStarted, map[string]any{"session_id": sessionID, "message": "Live session started"})
}

func SessionStopped(sessionID int64) Event {
	return newEvent(EventSessionStopped, map[string]any{"session_id": sessionID, "message": "Live session stopped"})
}

func QuestionProcessing(sessionID, commentID int64, username string) Event {
	return newEvent(EventQuestionProcessing, map[string]any{
		"session_id": sessionID,
		"comment_id": commentID,
		"message":    "Generating an answer for " + username,
	})
}

// QuestionAnswered carries the rendered answer video, empty when the answer
// played through a realtime track, and the voiced audio.
func QuestionAnswered(sessionID, commentID int64, videoURL, audioURL string) Event {
	return newEvent(EventQuestionAnswered, map[string]any{
		"session_id": sessionID,
		"comment_id": commentID,
		"video_path": videoURL,
		"audio_path": audioURL,
		"message":    "Answer is ready",
	})
}

func QuestionError(sessionID, commentID int64, message string) Event {
	return newEvent(EventQuestionError, map[string]any{
		"session_id": sessionID,
		"comment_id": commentID,
		"message":    message,
	})
}

// LiveComment forwards one chat message pulled from an external platform.
func LiveComment(m ChatMessage) Event {
	return newEvent(EventLiveComment, map[string]any{"comment": m})
}
