package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// relayEvent is one JSON frame pushed by the webcast relay.
type relayEvent struct {
	Event   string `json:"event"`
	Comment string `json:"comment,omitempty"`
	Reason  string `json:"reason,omitempty"`
	User    struct {
		UniqueID string `json:"uniqueId"`
		Nickname string `json:"nickname"`
	} `json:"user"`
}

const (
	relayConnected    = "connected"
	relayChat         = "chat"
	relayDisconnected = "disconnected"
)

// TikTokSource subscribes to a webcast relay that speaks JSON over websocket.
type TikTokSource struct {
	relayURL string
	grace    time.Duration
	dialer   *websocket.Dialer
	logger   *zap.SugaredLogger
}

var _ ports.ChatSource = (*TikTokSource)(nil)

func NewTikTokSource(relayURL string, grace time.Duration, logger *zap.SugaredLogger) *TikTokSource {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &TikTokSource{
		relayURL: relayURL,
		grace:    grace,
		dialer:   &websocket.Dialer{HandshakeTimeout: grace},
		logger:   logger,
	}
}

func (s *TikTokSource) Platform() domain.Platform  { return domain.PlatformTikTok }
func (s *TikTokSource) GracePeriod() time.Duration { return s.grace }

func (s *TikTokSource) Normalize(identifier string) (string, error) {
	return validation.NormalizeTikTokUniqueID(identifier)
}

// Open dials the relay and waits for its "connected" frame.
func (s *TikTokSource) Open(ctx context.Context, uniqueID string) (ports.ChatStream, error) {
	u, err := url.Parse(s.relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("uniqueId", uniqueID)
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	stream := &tiktokStream{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-stream.done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.grace))
	ev, err := stream.read()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("relay handshake: %w", err)
	}
	if ev.Event != relayConnected {
		stream.Close()
		return nil, fmt.Errorf("@%s: %s: %w", uniqueID, ev.Reason, domain.ErrNotLive)
	}
	_ = conn.SetReadDeadline(time.Time{})

	s.logger.Debugw("relay connected", "unique_id", uniqueID)
	return stream, nil
}

type tiktokStream struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (s *tiktokStream) read() (relayEvent, error) {
	var ev relayEvent
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("malformed relay frame: %w", err)
	}
	return ev, nil
}

// Next blocks for the next relay frame. Frames other than chat yield an empty batch.
func (s *tiktokStream) Next(ctx context.Context) ([]domain.ChatMessage, error) {
	ev, err := s.read()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	switch ev.Event {
	case relayChat:
		author := ev.User.Nickname
		if author == "" {
			author = ev.User.UniqueID
		}
		return []domain.ChatMessage{
			domain.NewChatMessage(domain.PlatformTikTok, author, ev.Comment, time.Now()),
		}, nil
	case relayDisconnected:
		return nil, io.EOF
	default:
		return nil, nil
	}
}

func (s *tiktokStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
