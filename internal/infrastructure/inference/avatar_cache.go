package inference

import (
	"context"
	"errors"
	"sync"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/internal/infrastructure/monitoring"
	"avatarcast/pkg/cache"
	"avatarcast/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// AvatarCache holds prepared avatars and tracks which one drives generation.
// Preparation runs outside the lock; concurrent requests for one avatar share a
// single preparation.
type AvatarCache struct {
	preparer ports.AvatarPreparer

	mu        sync.Mutex
	bundles   *cache.LRU[string, *domain.PreparedAvatar]
	preparing map[string]struct{}
	current   string

	flights singleflight.Group

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

func NewAvatarCache(preparer ports.AvatarPreparer, capacity int, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *AvatarCache {
	c := &AvatarCache{
		preparer:  preparer,
		preparing: make(map[string]struct{}),
		metrics:   metrics,
		logger:    logger,
	}
	c.bundles = cache.NewLRU[string, *domain.PreparedAvatar](capacity, func(id string, _ *domain.PreparedAvatar) {
		// Runs inside Add, with c.mu held.
		if c.current == id {
			c.current = ""
		}
		c.logger.Infow("avatar evicted", "avatar_id", id)
	})
	return c
}

// Prepare makes req.AvatarID current, preparing it first on a cache miss.
// A failed preparation leaves the cache unchanged.
func (c *AvatarCache) Prepare(ctx context.Context, req domain.PrepareRequest) bool {
	if req.AvatarID == "" {
		c.logger.Warn("prepare called without avatar id")
		return false
	}

	c.mu.Lock()
	if _, ok := c.bundles.Get(req.AvatarID); ok {
		c.current = req.AvatarID
		c.mu.Unlock()
		c.logger.Debugw("avatar cache hit", "avatar_id", req.AvatarID)
		return true
	}
	c.preparing[req.AvatarID] = struct{}{}
	c.mu.Unlock()

	_, err, shared := c.flights.Do(req.AvatarID, func() (any, error) {
		return nil, c.prepare(ctx, req)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.preparing, req.AvatarID)
	if err != nil {
		c.logger.Errorw("avatar preparation failed", "avatar_id", req.AvatarID, "error", err)
		return false
	}
	if _, ok := c.bundles.Peek(req.AvatarID); !ok {
		// Evicted between insertion and now by a burst of other avatars.
		return false
	}
	c.current = req.AvatarID
	c.logger.Infow("avatar ready", "avatar_id", req.AvatarID, "shared", shared)
	return true
}

func (c *AvatarCache) prepare(ctx context.Context, req domain.PrepareRequest) error {
	// A flight that finished just before this one started may already have inserted it.
	c.mu.Lock()
	_, ok := c.bundles.Peek(req.AvatarID)
	c.mu.Unlock()
	if ok {
		return nil
	}

	ctx, span := tracing.TraceAvatarPreparation(ctx, req.AvatarID)
	defer span.End()

	start := time.Now()
	bundle, err := c.preparer.Prepare(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	if bundle == nil || bundle.Len() == 0 {
		return errors.New("preparation returned an empty bundle")
	}
	if err := validateBundle(bundle); err != nil {
		return err
	}
	c.metrics.ObservePreparation(time.Since(start))

	c.mu.Lock()
	c.bundles.Add(req.AvatarID, bundle)
	c.metrics.SetAvatarCacheSize(c.bundles.Len())
	c.mu.Unlock()
	return nil
}

func validateBundle(b *domain.PreparedAvatar) error {
	n := len(b.Frames)
	if len(b.Coords) != n || len(b.Masks) != n || len(b.MaskBoxes) != n {
		return errors.New("prepared avatar bundle is not index-aligned")
	}
	if len(b.Latents) == 0 {
		return errors.New("prepared avatar bundle has no latents")
	}
	return nil
}

// Get returns a ready bundle without touching the current pointer.
func (c *AvatarCache) Get(avatarID string) (*domain.PreparedAvatar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bundles.Get(avatarID)
}

// Current returns the most recently prepared bundle, or nil.
func (c *AvatarCache) Current() *domain.PreparedAvatar {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == "" {
		return nil
	}
	b, _ := c.bundles.Peek(c.current)
	return b
}

func (c *AvatarCache) CurrentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State reports the cache state of one avatar.
func (c *AvatarCache) State(avatarID string) domain.PreparedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.preparing[avatarID]; ok {
		return domain.AvatarPreparing
	}
	if _, ok := c.bundles.Peek(avatarID); ok {
		return domain.AvatarReady
	}
	return domain.AvatarUnprepared
}

func (c *AvatarCache) Len() int {
	return c.bundles.Len()
}
