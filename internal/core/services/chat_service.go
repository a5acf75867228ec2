package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/tracing"

	"go.uber.org/zap"
)

const maxImportantComments = 5

// importantKeywords flag comments about price, shipping, quality, stock and ordering.
var importantKeywords = []string{
	"giá", "bao nhiêu", "price", "cost",
	"ship", "giao hàng", "chất lượng", "quality",
	"bảo hành", "warranty", "còn hàng", "available",
	"mua", "buy", "order", "đặt hàng",
	"tư vấn", "advice", "giảm giá", "discount",
	"khuyến mãi", "promotion", "thanh toán", "payment",
	"size", "màu", "color",
}

// ChatService is the control surface over the per-platform ingestion bridges.
// At most one platform is connected at a time.
type ChatService struct {
	bridges map[domain.Platform]ports.ChatBridge
	order   []domain.Platform

	opMu    sync.Mutex // serializes Connect and Disconnect
	mu      sync.Mutex
	current domain.Platform

	logger *zap.SugaredLogger
}

func NewChatService(logger *zap.SugaredLogger, bridges ...ports.ChatBridge) *ChatService {
	s := &ChatService{
		bridges: make(map[domain.Platform]ports.ChatBridge, len(bridges)),
		logger:  logger,
	}
	for _, b := range bridges {
		s.bridges[b.Platform()] = b
		s.order = append(s.order, b.Platform())
	}
	return s
}

func (s *ChatService) ListPlatforms() []domain.Platform {
	out := make([]domain.Platform, len(s.order))
	copy(out, s.order)
	return out
}

// Connect switches ingestion to platform. The previous bridge is disconnected
// first when the platform changes.
func (s *ChatService) Connect(ctx context.Context, platform domain.Platform, identifier string) (bool, error) {
	bridge, ok := s.bridges[domain.Platform(strings.ToLower(string(platform)))]
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, platform)
	}

	ctx, span := tracing.TraceChatConnect(ctx, string(bridge.Platform()))
	defer span.End()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if prev := s.currentBridge(); prev != nil && prev.Platform() != bridge.Platform() {
		prev.Disconnect()
		s.setCurrent("")
	}

	connected, err := bridge.Connect(ctx, identifier)
	if err != nil {
		return false, err
	}
	if connected {
		s.setCurrent(bridge.Platform())
		s.logger.Infow("chat connected", "platform", bridge.Platform(), "identifier", identifier)
	} else {
		s.logger.Warnw("chat connection failed", "platform", bridge.Platform(), "identifier", identifier)
	}
	return connected, nil
}

func (s *ChatService) Disconnect() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	b := s.currentBridge()
	if b == nil {
		return true
	}
	ok := b.Disconnect()
	s.setCurrent("")
	return ok
}

func (s *ChatService) CurrentPlatform() domain.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *ChatService) IsConnected() bool {
	b := s.currentBridge()
	return b != nil && b.State() == domain.StateConnected
}

// DrainComments empties the connected bridge's buffer.
func (s *ChatService) DrainComments() []domain.ChatMessage {
	b := s.currentBridge()
	if b == nil {
		return []domain.ChatMessage{}
	}
	return b.Drain()
}

// ImportantComments drains the buffer and returns at most five comments worth
// answering. Questions rank high, keyword hits medium; with no hit the last
// three comments are returned as low priority.
func (s *ChatService) ImportantComments() []domain.ChatMessage {
	return PrioritizeComments(s.DrainComments())
}

func (s *ChatService) setCurrent(p domain.Platform) {
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
}

func (s *ChatService) currentBridge() ports.ChatBridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return nil
	}
	return s.bridges[s.current]
}

// PrioritizeComments tags and filters the comments worth answering.
func PrioritizeComments(msgs []domain.ChatMessage) []domain.ChatMessage {
	important := make([]domain.ChatMessage, 0, maxImportantComments)
	for _, m := range msgs {
		text := strings.ToLower(m.Message)
		question := strings.Contains(text, "?")
		if !question && !containsAny(text, importantKeywords) {
			continue
		}
		m.Priority = domain.PriorityMedium
		if question {
			m.Priority = domain.PriorityHigh
		}
		important = append(important, m)
	}

	if len(important) == 0 {
		for _, m := range msgs[max(0, len(msgs)-3):] {
			m.Priority = domain.PriorityLow
			important = append(important, m)
		}
	}

	if len(important) > maxImportantComments {
		important = important[:maxImportantComments]
	}
	return important
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
