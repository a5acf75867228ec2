package ports

import (
	"context"

	"avatarcast/internal/core/domain"
)

// Persistence collaborator. Implementations do not retry; callers do.

type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
}

type AvatarRepository interface {
	Create(ctx context.Context, a *domain.Avatar) error
	GetByID(ctx context.Context, id int64) (*domain.Avatar, error)
	MarkPrepared(ctx context.Context, id int64, prepared bool) error
}

type LiveSessionRepository interface {
	Create(ctx context.Context, s *domain.LiveSession) error
	GetByID(ctx context.Context, id int64) (*domain.LiveSession, error)
	UpdateStatus(ctx context.Context, id int64, status domain.LiveSessionStatus) error
}

type StreamProductRepository interface {
	Create(ctx context.Context, sp *domain.StreamProduct) error
	GetByID(ctx context.Context, id int64) (*domain.StreamProduct, error)
	ListBySession(ctx context.Context, sessionID int64) ([]*domain.StreamProduct, error)
	Update(ctx context.Context, sp *domain.StreamProduct) error
}

type CommentRepository interface {
	Create(ctx context.Context, c *domain.Comment) error
	GetByID(ctx context.Context, id int64) (*domain.Comment, error)
	ListBySession(ctx context.Context, sessionID int64, offset, limit int) ([]*domain.Comment, error)
	MarkAnswered(ctx context.Context, id int64, answerPath string) error
}

// Repositories bundles the collaborator so services take a single dependency.
type Repositories struct {
	Products       ProductRepository
	Avatars        AvatarRepository
	Sessions       LiveSessionRepository
	StreamProducts StreamProductRepository
	Comments       CommentRepository
}
