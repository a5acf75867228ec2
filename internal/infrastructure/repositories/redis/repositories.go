package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

func sessionIndex(kind string, sessionID int64) string {
	return fmt.Sprintf("%slive_session:%d:%s", keyPrefix, sessionID, kind)
}

type ProductRepository struct{ s *store[domain.Product] }

func NewProductRepository(client *redis.Client) ports.ProductRepository {
	return &ProductRepository{s: newStore(client, "product", func(p *domain.Product) *int64 { return &p.ID })}
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return r.s.insert(ctx, p)
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	return r.s.get(ctx, id)
}

type AvatarRepository struct{ s *store[domain.Avatar] }

func NewAvatarRepository(client *redis.Client) ports.AvatarRepository {
	return &AvatarRepository{s: newStore(client, "avatar", func(a *domain.Avatar) *int64 { return &a.ID })}
}

func (r *AvatarRepository) Create(ctx context.Context, a *domain.Avatar) error {
	a.UpdatedAt = time.Now().UTC()
	return r.s.insert(ctx, a)
}

func (r *AvatarRepository) GetByID(ctx context.Context, id int64) (*domain.Avatar, error) {
	return r.s.get(ctx, id)
}

func (r *AvatarRepository) MarkPrepared(ctx context.Context, id int64, prepared bool) error {
	return r.s.update(ctx, id, func(a *domain.Avatar) {
		a.IsPrepared = prepared
		a.UpdatedAt = time.Now().UTC()
	})
}

type LiveSessionRepository struct{ s *store[domain.LiveSession] }

func NewLiveSessionRepository(client *redis.Client) ports.LiveSessionRepository {
	return &LiveSessionRepository{s: newStore(client, "live_session", func(s *domain.LiveSession) *int64 { return &s.ID })}
}

func (r *LiveSessionRepository) Create(ctx context.Context, s *domain.LiveSession) error {
	if s.Status == "" {
		s.Status = domain.LiveSessionPreparing
	}
	return r.s.insert(ctx, s)
}

func (r *LiveSessionRepository) GetByID(ctx context.Context, id int64) (*domain.LiveSession, error) {
	return r.s.get(ctx, id)
}

func (r *LiveSessionRepository) UpdateStatus(ctx context.Context, id int64, status domain.LiveSessionStatus) error {
	return r.s.update(ctx, id, func(s *domain.LiveSession) {
		s.Status = status
		now := time.Now().UTC()
		switch status {
		case domain.LiveSessionLive:
			s.StartTime = &now
		case domain.LiveSessionCompleted:
			s.EndTime = &now
		}
	})
}

type StreamProductRepository struct{ s *store[domain.StreamProduct] }

func NewStreamProductRepository(client *redis.Client) ports.StreamProductRepository {
	return &StreamProductRepository{s: newStore(client, "stream_product", func(sp *domain.StreamProduct) *int64 { return &sp.ID })}
}

func (r *StreamProductRepository) Create(ctx context.Context, sp *domain.StreamProduct) error {
	return r.s.insert(ctx, sp, sessionIndex("products", sp.SessionID))
}

func (r *StreamProductRepository) GetByID(ctx context.Context, id int64) (*domain.StreamProduct, error) {
	return r.s.get(ctx, id)
}

func (r *StreamProductRepository) ListBySession(ctx context.Context, sessionID int64) ([]*domain.StreamProduct, error) {
	out, err := r.s.list(ctx, sessionIndex("products", sessionID), 0, -1)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderInStream < out[j].OrderInStream })
	return out, nil
}

func (r *StreamProductRepository) Update(ctx context.Context, sp *domain.StreamProduct) error {
	rec := *sp
	return r.s.update(ctx, sp.ID, func(cur *domain.StreamProduct) { *cur = rec })
}

type CommentRepository struct{ s *store[domain.Comment] }

func NewCommentRepository(client *redis.Client) ports.CommentRepository {
	return &CommentRepository{s: newStore(client, "comment", func(c *domain.Comment) *int64 { return &c.ID })}
}

func (r *CommentRepository) Create(ctx context.Context, c *domain.Comment) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	return r.s.insert(ctx, c, sessionIndex("comments", c.SessionID))
}

func (r *CommentRepository) GetByID(ctx context.Context, id int64) (*domain.Comment, error) {
	return r.s.get(ctx, id)
}

func (r *CommentRepository) ListBySession(ctx context.Context, sessionID int64, offset, limit int) ([]*domain.Comment, error) {
	start := int64(max(offset, 0))
	stop := int64(-1)
	if limit > 0 {
		stop = start + int64(limit) - 1
	}
	return r.s.list(ctx, sessionIndex("comments", sessionID), start, stop)
}

func (r *CommentRepository) MarkAnswered(ctx context.Context, id int64, answerPath string) error {
	return r.s.update(ctx, id, func(c *domain.Comment) {
		c.Answered = true
		c.AnswerVideoPath = answerPath
	})
}

// New returns a repository set backed by client.
func New(client *redis.Client) ports.Repositories {
	return ports.Repositories{
		Products:       NewProductRepository(client),
		Avatars:        NewAvatarRepository(client),
		Sessions:       NewLiveSessionRepository(client),
		StreamProducts: NewStreamProductRepository(client),
		Comments:       NewCommentRepository(client),
	}
}
