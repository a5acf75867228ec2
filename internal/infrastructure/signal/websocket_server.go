package signal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsConnection adapts a websocket to Connection. Data writes come only from the
// hub goroutine; pings use WriteControl, which is safe alongside them.
type wsConnection struct {
	id          string
	conn        *websocket.Conn
	sendTimeout time.Duration
	closeOnce   sync.Once
}

func (c *wsConnection) ID() string { return c.id }

func (c *wsConnection) Send(text []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, text)
}

func (c *wsConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}

type WebSocketServer struct {
	hub *Hub

	pingInterval    time.Duration
	pongTimeout     time.Duration
	writeTimeout    time.Duration
	sendTimeout     time.Duration
	maxMessageBytes int64

	logger *zap.SugaredLogger
}

func NewWebSocketServer(hub *Hub, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		hub:             hub,
		pingInterval:    30 * time.Second,
		pongTimeout:     60 * time.Second,
		writeTimeout:    10 * time.Second,
		sendTimeout:     2 * time.Second,
		maxMessageBytes: 64 * 1024,
		logger:          logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	if interval > 0 {
		s.pingInterval = interval
	}
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.pongTimeout = timeout
	}
}

func (s *WebSocketServer) SetWriteTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.writeTimeout = timeout
	}
}

// SetSendTimeout bounds each event write. Sends run on the hub's scheduler
// goroutine, so a subscriber that stops reading stalls every broadcast for up to
// this long before it is evicted.
func (s *WebSocketServer) SetSendTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.sendTimeout = timeout
	}
}

func (s *WebSocketServer) SetMaxMessageBytes(n int64) {
	if n > 0 {
		s.maxMessageBytes = n
	}
}

// HandleWebSocket upgrades the request and subscribes it to the event hub until
// the client goes away. Text frames from the client are acknowledged.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	client := &wsConnection{
		id:          uuid.NewString(),
		conn:        conn,
		sendTimeout: s.sendTimeout,
	}
	s.hub.Register(client)
	s.logger.Infow("subscriber connected", "conn_id", client.id, "remote_addr", r.RemoteAddr)

	defer func() {
		s.hub.Unregister(client)
		_ = client.Close()
		s.logger.Infow("subscriber disconnected", "conn_id", client.id)
	}()

	conn.SetReadLimit(s.maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan []byte, 10)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			if msgType != websocket.TextMessage {
				continue
			}
			select {
			case messageChan <- data:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case data := <-messageChan:
			ack := []byte(fmt.Sprintf("Message received: %s", data))
			s.hub.SendTo(context.Background(), client.id, ack)

		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				s.logger.Infow("error sending ping", "conn_id", client.id, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading from subscriber", "conn_id", client.id, "error", err)
			}
			return
		}
	}
}
