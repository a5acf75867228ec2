package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	currentSchemaVersion = 1
)

// Migration is one step of the key layout history.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("schema is up to date", "version", currentVersion)
		}
		return nil
	}

	for _, m := range getMigrations() {
		if m.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", m.Version)
		}
		if err := m.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if err := client.Set(ctx, schemaVersionKey, m.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

var sequenceTables = []string{"product", "avatar", "live_session", "stream_product", "comment"}

func getMigrations() []Migration {
	return []Migration{
		{
			// Seed id sequences so INCR never collides with hand-inserted rows.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
					for _, t := range sequenceTables {
						pipe.SetNX(ctx, keyPrefix+t+":seq", 0, 0)
					}
					return nil
				})
				return err
			},
		},
	}
}
