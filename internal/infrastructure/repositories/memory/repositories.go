package memory

import (
	"context"
	"sort"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
)

type ProductRepository struct{ t *table[domain.Product] }

func NewProductRepository() ports.ProductRepository {
	return &ProductRepository{t: newTable(func(p *domain.Product) *int64 { return &p.ID })}
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.t.insert(p)
	return nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	return r.t.get(id)
}

type AvatarRepository struct{ t *table[domain.Avatar] }

func NewAvatarRepository() ports.AvatarRepository {
	return &AvatarRepository{t: newTable(func(a *domain.Avatar) *int64 { return &a.ID })}
}

func (r *AvatarRepository) Create(ctx context.Context, a *domain.Avatar) error {
	a.UpdatedAt = time.Now().UTC()
	r.t.insert(a)
	return nil
}

func (r *AvatarRepository) GetByID(ctx context.Context, id int64) (*domain.Avatar, error) {
	return r.t.get(id)
}

func (r *AvatarRepository) MarkPrepared(ctx context.Context, id int64, prepared bool) error {
	return r.t.update(id, func(a *domain.Avatar) {
		a.IsPrepared = prepared
		a.UpdatedAt = time.Now().UTC()
	})
}

type LiveSessionRepository struct{ t *table[domain.LiveSession] }

func NewLiveSessionRepository() ports.LiveSessionRepository {
	return &LiveSessionRepository{t: newTable(func(s *domain.LiveSession) *int64 { return &s.ID })}
}

func (r *LiveSessionRepository) Create(ctx context.Context, s *domain.LiveSession) error {
	if s.Status == "" {
		s.Status = domain.LiveSessionPreparing
	}
	r.t.insert(s)
	return nil
}

func (r *LiveSessionRepository) GetByID(ctx context.Context, id int64) (*domain.LiveSession, error) {
	return r.t.get(id)
}

// UpdateStatus stamps the start time on going live and the end time on completion.
func (r *LiveSessionRepository) UpdateStatus(ctx context.Context, id int64, status domain.LiveSessionStatus) error {
	return r.t.update(id, func(s *domain.LiveSession) {
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

type StreamProductRepository struct{ t *table[domain.StreamProduct] }

func NewStreamProductRepository() ports.StreamProductRepository {
	return &StreamProductRepository{t: newTable(func(sp *domain.StreamProduct) *int64 { return &sp.ID })}
}

func (r *StreamProductRepository) Create(ctx context.Context, sp *domain.StreamProduct) error {
	r.t.insert(sp)
	return nil
}

func (r *StreamProductRepository) GetByID(ctx context.Context, id int64) (*domain.StreamProduct, error) {
	return r.t.get(id)
}

// ListBySession orders products by their position in the stream.
func (r *StreamProductRepository) ListBySession(ctx context.Context, sessionID int64) ([]*domain.StreamProduct, error) {
	out := r.t.filter(func(sp *domain.StreamProduct) bool { return sp.SessionID == sessionID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderInStream < out[j].OrderInStream })
	return out, nil
}

func (r *StreamProductRepository) Update(ctx context.Context, sp *domain.StreamProduct) error {
	rec := *sp
	return r.t.update(sp.ID, func(cur *domain.StreamProduct) { *cur = rec })
}

type CommentRepository struct{ t *table[domain.Comment] }

func NewCommentRepository() ports.CommentRepository {
	return &CommentRepository{t: newTable(func(c *domain.Comment) *int64 { return &c.ID })}
}

func (r *CommentRepository) Create(ctx context.Context, c *domain.Comment) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	r.t.insert(c)
	return nil
}

func (r *CommentRepository) GetByID(ctx context.Context, id int64) (*domain.Comment, error) {
	return r.t.get(id)
}

func (r *CommentRepository) ListBySession(ctx context.Context, sessionID int64, offset, limit int) ([]*domain.Comment, error) {
	all := r.t.filter(func(c *domain.Comment) bool { return c.SessionID == sessionID })
	offset = max(offset, 0)
	if offset >= len(all) {
		return []*domain.Comment{}, nil
	}
	end := len(all)
	if limit > 0 {
		end = min(offset+limit, len(all))
	}
	return all[offset:end], nil
}

func (r *CommentRepository) MarkAnswered(ctx context.Context, id int64, answerPath string) error {
	return r.t.update(id, func(c *domain.Comment) {
		c.Answered = true
		c.AnswerVideoPath = answerPath
	})
}

// New returns a full in-process repository set.
func New() ports.Repositories {
	return ports.Repositories{
		Products:       NewProductRepository(),
		Avatars:        NewAvatarRepository(),
		Sessions:       NewLiveSessionRepository(),
		StreamProducts: NewStreamProductRepository(),
		Comments:       NewCommentRepository(),
	}
}
