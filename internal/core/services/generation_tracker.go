package services

import (
	"sync"
	"time"

	"avatarcast/internal/core/domain"
)

// GenerationTracker records which realtime sessions have a producer running.
// TryBegin is the only way to mark a session as generating, so two callers can
// never both win for the same session.
type GenerationTracker struct {
	mu     sync.Mutex
	status map[string]domain.GenerationStatus
}

func NewGenerationTracker() *GenerationTracker {
	return &GenerationTracker{status: make(map[string]domain.GenerationStatus)}
}

func (t *GenerationTracker) TryBegin(sessionID, productID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status[sessionID].IsGenerating {
		return false
	}
	t.status[sessionID] = domain.GenerationStatus{
		IsGenerating:    true,
		ActiveProductID: productID,
		StartedAt:       time.Now(),
	}
	return true
}

func (t *GenerationTracker) End(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status[sessionID] = domain.GenerationStatus{}
}

// Status returns the zero value for sessions that never generated.
func (t *GenerationTracker) Status(sessionID string) domain.GenerationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status[sessionID]
}

func (t *GenerationTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status[sessionID].IsGenerating {
		delete(t.status, sessionID)
	}
}
