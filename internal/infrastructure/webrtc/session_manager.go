package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/internal/infrastructure/media"
	"avatarcast/internal/infrastructure/monitoring"
	"avatarcast/pkg/validation"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds transport settings.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	DefaultFPS    int
	QueueSeconds  int
	AudioEnabled  bool
	SampleRate    int
	GatherTimeout time.Duration
}

// VideoEncoderFactory builds one encoder per negotiated session.
type VideoEncoderFactory func(fps int) media.VideoEncoder

// AudioEncoderFactory builds one audio encoder per negotiated session.
type AudioEncoderFactory func() media.AudioEncoder

// SessionManager owns every realtime session and its peer connection.
type SessionManager struct {
	config   Config
	api      *webrtc.API
	newVideo VideoEncoderFactory
	newAudio AudioEncoderFactory

	sessions map[string]*Session
	mu       sync.RWMutex

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

var _ ports.TransportService = (*SessionManager)(nil)

func NewSessionManager(
	config Config,
	newVideo VideoEncoderFactory,
	newAudio AudioEncoderFactory,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) (*SessionManager, error) {
	if config.DefaultFPS <= 0 {
		config.DefaultFPS = 25
	}
	if config.QueueSeconds <= 0 {
		config.QueueSeconds = 5
	}
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = 10 * time.Second
	}
	if newAudio == nil {
		newAudio = func() media.AudioEncoder { return media.PCMUEncoder{} }
	}

	api, err := newAPI(config)
	if err != nil {
		return nil, err
	}

	return &SessionManager{
		config:   config,
		api:      api,
		newVideo: newVideo,
		newAudio: newAudio,
		sessions: make(map[string]*Session),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

func newAPI(config Config) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if config.PortRange.Min > 0 && config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(config.PortRange.Min, config.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	), nil
}

// EnsureSession returns the session for id, creating it unbound when absent.
// An existing session keeps its original rate.
func (m *SessionManager) EnsureSession(id string, fps int) (ports.RealtimeSession, error) {
	sess, err := m.ensure(id, fps)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *SessionManager) ensure(id string, fps int) (*Session, error) {
	if err := validation.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSessionID, err)
	}
	if fps <= 0 {
		fps = m.config.DefaultFPS
	}
	// fps sizes the session queues, so it is bounded before anything is allocated.
	if err := validation.ValidateFPS(fps); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFPS, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	sess := newSession(id, fps, m.config.QueueSeconds, m.config.AudioEnabled)
	m.sessions[id] = sess
	m.logger.Infow("session created", "session_id", id, "fps", fps)
	return sess, nil
}

func (m *SessionManager) Lookup(id string) (ports.RealtimeSession, bool) {
	sess, ok := m.get(id)
	if !ok {
		return nil, false
	}
	return sess, true
}

func (m *SessionManager) get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Negotiate answers a viewer offer and binds the session's tracks to a new peer
// connection. Invalid offers are rejected before any session is created.
func (m *SessionManager) Negotiate(ctx context.Context, id string, offer domain.Offer, fps int) (domain.Answer, error) {
	offer, err := NormalizeOffer(id, offer)
	if err != nil {
		m.metrics.RecordNegotiation(err)
		return domain.Answer{}, err
	}

	sess, err := m.ensure(id, fps)
	if err != nil {
		m.metrics.RecordNegotiation(err)
		return domain.Answer{}, err
	}

	sess.negotiateMu.Lock()
	defer sess.negotiateMu.Unlock()

	switch sess.State() {
	case domain.SessionActive, domain.SessionNegotiating:
		m.metrics.RecordNegotiation(domain.ErrAlreadyNegotiated)
		return domain.Answer{}, domain.ErrAlreadyNegotiated
	case domain.SessionClosed:
		m.metrics.RecordNegotiation(domain.ErrSessionClosed)
		return domain.Answer{}, domain.ErrSessionClosed
	}
	sess.setState(domain.SessionNegotiating)

	answer, err := m.negotiate(ctx, sess, offer)
	m.metrics.RecordNegotiation(err)
	if err != nil {
		sess.setState(domain.SessionUnbound)
		m.logger.Warnw("negotiation failed", "session_id", id, "error", err)
		return domain.Answer{}, err
	}

	sess.setState(domain.SessionActive)
	m.metrics.RecordSessionOpened()
	m.logger.Infow("session negotiated", "session_id", id, "fps", sess.fps)
	return answer, nil
}

func (m *SessionManager) negotiate(ctx context.Context, sess *Session, offer domain.Offer) (domain.Answer, error) {
	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: m.config.ICEServers})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("failed to create peer connection: %w", err)
	}
	if !sess.attach(pc) {
		_ = pc.Close()
		return domain.Answer{}, domain.ErrSessionClosed
	}

	fail := func(err error) (domain.Answer, error) {
		sess.detach(pc)
		if cerr := pc.Close(); cerr != nil {
			m.logger.Debugw("failed to close peer connection", "session_id", sess.id, "error", cerr)
		}
		return domain.Answer{}, err
	}

	startPumps, err := m.addTracks(sess, pc)
	if err != nil {
		return fail(err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.logger.Debugw("ignoring inbound track",
			"session_id", sess.id,
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Infow("peer connection state changed", "session_id", sess.id, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if sess.owns(pc) {
				sess.pumpsOnce.Do(startPumps)
			}
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			if sess.owns(pc) {
				go m.closeSession(sess)
			}
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrInvalidOffer, err))
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create answer: %w", err))
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("failed to set local description: %w", err))
	}

	timer := time.NewTimer(m.config.GatherTimeout)
	defer timer.Stop()
	select {
	case <-gatherComplete:
	case <-timer.C:
		m.logger.Warnw("ICE gathering timed out, answering with partial candidates", "session_id", sess.id)
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	local := pc.LocalDescription()
	if local == nil {
		return fail(errors.New("missing local description"))
	}
	return domain.Answer{SDP: local.SDP, Type: local.Type.String()}, nil
}

// addTracks adds the outbound tracks and returns the function that starts their pumps.
func (m *SessionManager) addTracks(sess *Session, pc *webrtc.PeerConnection) (func(), error) {
	streamID := "avatarcast-" + sess.id
	tick := time.Second / time.Duration(sess.fps)

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video",
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	videoSender, err := pc.AddTrack(videoTrack)
	if err != nil {
		return nil, fmt.Errorf("failed to add video track: %w", err)
	}
	go m.readRTCP(sess.id, videoSender)

	var audioTrack *webrtc.TrackLocalStaticSample
	if sess.queues.Audio != nil {
		audioTrack, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: uint32(m.sampleRate()), Channels: 1},
			"audio",
			streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}
		audioSender, err := pc.AddTrack(audioTrack)
		if err != nil {
			return nil, fmt.Errorf("failed to add audio track: %w", err)
		}
		go m.readRTCP(sess.id, audioSender)
	}

	start := func() {
		ctx, cancel := context.WithCancel(context.Background())
		sess.mu.Lock()
		if sess.state == domain.SessionClosed {
			sess.mu.Unlock()
			cancel()
			return
		}
		sess.cancel = cancel
		sess.mu.Unlock()

		onEnd := func() { go m.closeSession(sess) }

		videoEnc := m.newVideo(sess.fps)
		sess.onClose(videoEnc.Close)
		video := NewTrackAdapter("video", sess.queues.Video, videoEnc.Encode, tick, m.metrics, m.logger)
		go video.Pump(ctx, videoTrack, onEnd)

		if audioTrack != nil {
			audio := NewTrackAdapter("audio", sess.queues.Audio, m.newAudio().Encode, tick, m.metrics, m.logger)
			go audio.Pump(ctx, audioTrack, onEnd)
		}
		m.logger.Debugw("track pumps started", "session_id", sess.id)
	}
	return start, nil
}

func (m *SessionManager) sampleRate() int {
	if m.config.SampleRate > 0 {
		return m.config.SampleRate
	}
	return 8000
}

// readRTCP drains sender reports so interceptors keep running, and counts
// picture loss indications.
func (m *SessionManager) readRTCP(sessionID string, sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			if _, ok := packet.(*rtcp.PictureLossIndication); ok {
				m.metrics.RecordPLI()
				m.logger.Debugw("received PLI", "session_id", sessionID)
			}
		}
	}
}

func (m *SessionManager) Status(id string) domain.SessionStatus {
	sess, ok := m.get(id)
	if !ok {
		return domain.SessionStatus{Exists: false}
	}
	return sess.status(m.config.AudioEnabled)
}

// Close tears the session down and forgets it. Unknown ids are ignored.
func (m *SessionManager) Close(id string) {
	sess, ok := m.get(id)
	if !ok {
		return
	}
	m.closeSession(sess)
}

// closeSession only removes the registry entry if it still points at sess, so a
// late callback from an old peer connection cannot close its replacement.
func (m *SessionManager) closeSession(sess *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[sess.id]; ok && cur == sess {
		delete(m.sessions, sess.id)
	}
	m.mu.Unlock()

	closed, wasActive, err := sess.close()
	if !closed {
		return
	}
	if wasActive {
		m.metrics.RecordSessionClosed()
	}
	if err != nil {
		m.logger.Warnw("error closing peer connection", "session_id", sess.id, "error", err)
	}
	m.logger.Infow("session closed", "session_id", sess.id)
}

// Shutdown closes every session.
func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.mu.RUnlock()

	for _, sess := range all {
		m.closeSession(sess)
	}
}

// Count returns the number of known sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
