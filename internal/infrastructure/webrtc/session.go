package webrtc

import (
	"context"
	"sync"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/internal/infrastructure/media"

	"github.com/pion/webrtc/v3"
)

// Session is one realtime viewer binding: its media queues and, once negotiated,
// its peer connection.
type Session struct {
	id        string
	fps       int
	queues    media.Pair
	createdAt time.Time

	// negotiateMu serializes offer handling for this session.
	negotiateMu sync.Mutex

	mu        sync.RWMutex
	state     domain.SessionState
	pc        *webrtc.PeerConnection
	cancel    context.CancelFunc
	closers   []func() error
	pumpsOnce sync.Once
}

func newSession(id string, fps, queueSeconds int, withAudio bool) *Session {
	return &Session{
		id:        id,
		fps:       fps,
		queues:    media.NewPair(fps, queueSeconds, withAudio),
		createdAt: time.Now(),
		state:     domain.SessionUnbound,
	}
}

func (s *Session) ID() string { return s.id }
func (s *Session) FPS() int   { return s.fps }

// Video is the producer side of the video queue.
func (s *Session) Video() ports.FrameSink { return s.queues.Video }

// Audio is nil when the audio track is disabled.
func (s *Session) Audio() *media.Queue[domain.AudioSamples] { return s.queues.Audio }

func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return
	}
	s.state = state
}

// attach binds pc unless the session was closed meanwhile.
func (s *Session) attach(pc *webrtc.PeerConnection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return false
	}
	s.pc = pc
	return true
}

// detach drops pc if it is still the bound one.
func (s *Session) detach(pc *webrtc.PeerConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pc == pc {
		s.pc = nil
		s.closers = nil
	}
}

func (s *Session) owns(pc *webrtc.PeerConnection) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pc == pc
}

func (s *Session) onClose(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// close tears the session down once. It reports whether this call did the work
// and whether the session had been active.
func (s *Session) close() (closed, wasActive bool, err error) {
	s.mu.Lock()
	if s.state == domain.SessionClosed {
		s.mu.Unlock()
		return false, false, nil
	}
	wasActive = s.state == domain.SessionActive
	s.state = domain.SessionClosed
	pc := s.pc
	cancel := s.cancel
	closers := s.closers
	s.pc = nil
	s.cancel = nil
	s.closers = nil
	s.mu.Unlock()

	s.queues.Close()
	if cancel != nil {
		cancel()
	}
	for _, c := range closers {
		_ = c()
	}
	if pc != nil {
		err = pc.Close()
	}
	return true, wasActive, err
}

func (s *Session) status(audioEnabled bool) domain.SessionStatus {
	st := domain.SessionStatus{
		Exists:        true,
		State:         s.State(),
		FPS:           s.fps,
		VideoQueue:    s.queues.Video.Len(),
		VideoCapacity: s.queues.Video.Cap(),
		VideoDropped:  s.queues.Video.Dropped(),
		AudioEnabled:  audioEnabled && s.queues.Audio != nil,
	}
	if s.queues.Audio != nil {
		st.AudioQueue = s.queues.Audio.Len()
	}
	return st
}
