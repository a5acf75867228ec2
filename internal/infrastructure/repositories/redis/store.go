package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"avatarcast/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "avatarcast:"

// store keeps one JSON document per record under <prefix>:<id> and hands out
// ids from <prefix>:seq. Secondary indexes are sorted sets scored by id.
type store[T any] struct {
	client *redis.Client
	prefix string
	id     func(*T) *int64
}

func newStore[T any](client *redis.Client, name string, id func(*T) *int64) *store[T] {
	return &store[T]{client: client, prefix: keyPrefix + name, id: id}
}

func (s *store[T]) key(id int64) string {
	return s.prefix + ":" + strconv.FormatInt(id, 10)
}

func (s *store[T]) seqKey() string {
	return s.prefix + ":seq"
}

func (s *store[T]) insert(ctx context.Context, rec *T, indexes ...string) error {
	id := s.id(rec)
	if *id == 0 {
		next, err := s.client.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate id for %s: %w", s.prefix, err)
		}
		*id = next
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.prefix, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(*id), data, 0)
		for _, idx := range indexes {
			pipe.ZAdd(ctx, idx, redis.Z{Score: float64(*id), Member: *id})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store %s %d: %w", s.prefix, *id, err)
	}
	return nil
}

func (s *store[T]) get(ctx context.Context, id int64) (*T, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %d: %w", s.prefix, id, err)
	}
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %d: %w", s.prefix, id, err)
	}
	return &rec, nil
}

// update applies fn inside an optimistic transaction. A concurrent writer
// makes it fail with redis.TxFailedErr; callers retry.
func (s *store[T]) update(ctx context.Context, id int64, fn func(*T)) error {
	key := s.key(id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get %s %d: %w", s.prefix, id, err)
		}
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal %s %d: %w", s.prefix, id, err)
		}
		fn(&rec)
		out, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %d: %w", s.prefix, id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)
}

// list loads the records referenced by index positions start..stop (inclusive,
// -1 for the end).
func (s *store[T]) list(ctx context.Context, index string, start, stop int64) ([]*T, error) {
	ids, err := s.client.ZRange(ctx, index, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}
	if len(ids) == 0 {
		return []*T{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + ":" + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", s.prefix, err)
	}

	out := make([]*T, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // deleted behind the index
		}
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", keys[i], err)
		}
		out = append(out, &rec)
	}
	return out, nil
}
