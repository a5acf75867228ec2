package repositories

import (
	"context"

	"avatarcast/internal/core/ports"
	"avatarcast/internal/infrastructure/repositories/memory"
	redisrepo "avatarcast/internal/infrastructure/repositories/redis"
	"avatarcast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory picks Redis when configured and reachable, memory otherwise.
type RepositoryFactory struct {
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
		} else {
			factory.redisClient = client
		}
	}

	if factory.UsingRedis() {
		logger.Info("using Redis repositories")
	} else {
		logger.Info("using memory repositories")
	}
	return factory
}

func (f *RepositoryFactory) UsingRedis() bool {
	return f.redisClient != nil
}

// RedisClient is nil on the memory backend.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Repositories returns a fresh repository set over the selected backend.
func (f *RepositoryFactory) Repositories() ports.Repositories {
	if f.redisClient != nil {
		return redisrepo.New(f.redisClient)
	}
	return memory.New()
}

func (f *RepositoryFactory) Close() error {
	return redisrepo.CloseRedisClient(f.redisClient)
}

// HealthCheck pings Redis; the memory backend is always healthy.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
