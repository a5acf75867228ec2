package signal

import (
	"context"
	"sync/atomic"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// Connection is one event subscriber. Send must not block indefinitely.
type Connection interface {
	ID() string
	Send(text []byte) error
	Close() error
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opBroadcast
	opSendTo
	opCount
)

type op struct {
	kind   opKind
	conn   Connection
	connID string
	text   []byte
	result chan int
}

type submission struct {
	eventType domain.EventType
	text      []byte
}

// Hub fans events out to every registered connection. All registry access and
// every send happen on the goroutine running Run, so connections never see
// concurrent writes and same-goroutine callers are served in call order.
type Hub struct {
	ops         chan op
	submissions chan submission
	stopped     chan struct{}
	running     atomic.Bool

	conns map[string]Connection

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

var _ ports.EventPublisher = (*Hub)(nil)

func NewHub(submissionBuffer int, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *Hub {
	if submissionBuffer <= 0 {
		submissionBuffer = 256
	}
	return &Hub{
		ops:         make(chan op),
		submissions: make(chan submission, submissionBuffer),
		stopped:     make(chan struct{}),
		conns:       make(map[string]Connection),
		metrics:     metrics,
		logger:      logger,
	}
}

// Run is the scheduler loop. It returns when ctx is done, closing every connection.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		for id, c := range h.conns {
			_ = c.Close()
			delete(h.conns, id)
		}
		h.metrics.SetHubConnections(0)
		close(h.stopped)
		h.running.Store(false)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case o := <-h.ops:
			h.apply(o)
		case s := <-h.submissions:
			h.broadcast(s.text)
			h.metrics.RecordEventBroadcast(s.eventType)
		}
	}
}

func (h *Hub) apply(o op) {
	n := 0
	switch o.kind {
	case opRegister:
		h.conns[o.conn.ID()] = o.conn
		h.metrics.SetHubConnections(len(h.conns))
		n = len(h.conns)
	case opUnregister:
		if cur, ok := h.conns[o.conn.ID()]; ok && cur == o.conn {
			delete(h.conns, o.conn.ID())
			h.metrics.SetHubConnections(len(h.conns))
		}
		n = len(h.conns)
	case opBroadcast:
		n = h.broadcast(o.text)
	case opSendTo:
		if c, ok := h.conns[o.connID]; ok {
			if err := c.Send(o.text); err != nil {
				h.evict([]Connection{c})
			} else {
				n = 1
			}
		}
	case opCount:
		n = len(h.conns)
	}
	if o.result != nil {
		o.result <- n
	}
}

// broadcast makes one send attempt per connection in a snapshot of the registry
// and evicts the failures after the pass.
func (h *Hub) broadcast(text []byte) int {
	snapshot := make([]Connection, 0, len(h.conns))
	for _, c := range h.conns {
		snapshot = append(snapshot, c)
	}

	var failed []Connection
	delivered := 0
	for _, c := range snapshot {
		if err := c.Send(text); err != nil {
			h.logger.Debugw("send failed, evicting connection", "conn_id", c.ID(), "error", err)
			failed = append(failed, c)
			continue
		}
		delivered++
	}
	h.evict(failed)
	return delivered
}

func (h *Hub) evict(conns []Connection) {
	for _, c := range conns {
		if cur, ok := h.conns[c.ID()]; ok && cur == c {
			delete(h.conns, c.ID())
			h.metrics.RecordConnectionEvicted()
		}
		_ = c.Close()
	}
	if len(conns) > 0 {
		h.metrics.SetHubConnections(len(h.conns))
	}
}

// do hands o to the scheduler and waits for its result. It returns false when
// the hub is not running.
func (h *Hub) do(ctx context.Context, o op) (int, bool) {
	o.result = make(chan int, 1)
	select {
	case h.ops <- o:
	case <-h.stopped:
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
	select {
	case n := <-o.result:
		return n, true
	case <-h.stopped:
		return 0, false
	}
}

// Register adds conn. Registering the same id again replaces the old entry.
func (h *Hub) Register(conn Connection) {
	h.do(context.Background(), op{kind: opRegister, conn: conn})
}

// Unregister removes conn if it is still the registered entry for its id.
func (h *Hub) Unregister(conn Connection) {
	h.do(context.Background(), op{kind: opUnregister, conn: conn})
}

// Broadcast delivers text to every connection and waits for the pass to finish.
// It returns the number of successful sends; failures are evicted, never returned.
func (h *Hub) Broadcast(ctx context.Context, text []byte) int {
	n, _ := h.do(ctx, op{kind: opBroadcast, text: text})
	return n
}

// BroadcastEvent encodes ev and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, ev domain.Event) int {
	text, err := ev.Encode()
	if err != nil {
		h.logger.Errorw("failed to encode event", "type", ev.Type, "error", err)
		return 0
	}
	n := h.Broadcast(ctx, text)
	h.metrics.RecordEventBroadcast(ev.Type)
	return n
}

// SendTo delivers text to one connection through the scheduler.
func (h *Hub) SendTo(ctx context.Context, id string, text []byte) bool {
	n, _ := h.do(ctx, op{kind: opSendTo, connID: id, text: text})
	return n == 1
}

// Submit queues ev for broadcast without blocking. It is safe from any
// goroutine; false means the event was dropped.
func (h *Hub) Submit(ev domain.Event) bool {
	text, err := ev.Encode()
	if err != nil {
		h.logger.Errorw("failed to encode event", "type", ev.Type, "error", err)
		return false
	}

	select {
	case <-h.stopped:
		h.metrics.RecordEventDropped()
		return false
	default:
	}

	select {
	case h.submissions <- submission{eventType: ev.Type, text: text}:
		return true
	default:
		h.metrics.RecordEventDropped()
		h.logger.Warnw("hub saturated, dropping event", "type", ev.Type)
		return false
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	n, _ := h.do(context.Background(), op{kind: opCount})
	return n
}

func (h *Hub) Running() bool {
	return h.running.Load()
}
