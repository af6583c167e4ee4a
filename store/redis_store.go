// file: store/redis_store.go

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatchSize = 100

// RedisStore implements Store on top of a go-redis client.
type RedisStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// NewRedisStore wraps client. Every operation runs under opTimeout; a zero
// value leaves the caller's deadline untouched.
func NewRedisStore(client redis.UniversalClient, opTimeout time.Duration) *RedisStore {
	return &RedisStore{client: client, opTimeout: opTimeout}
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", unavailable("get", err)
	}
	return val, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, unavailable("del", err)
	}
	return n, nil
}

// DeleteByPattern walks the keyspace with SCAN instead of KEYS so a large
// keyspace never blocks the server.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		deleted int64
		batch   = make([]string, 0, scanBatchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += n
		batch = batch[:0]
		return nil
	}

	iter := s.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := flush(); err != nil {
				return deleted, unavailable("del", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, unavailable("scan", err)
	}
	if err := flush(); err != nil {
		return deleted, unavailable("del", err)
	}
	return deleted, nil
}

// RecordEvent runs inside MULTI/EXEC so no other client can write to the
// window between the purge and the insert.
func (s *RedisStore) RecordEvent(ctx context.Context, key string, event WindowEvent) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", exclusive(event.WindowStart))
		card = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(event.Score), Member: event.Member})
		pipe.Expire(ctx, key, event.TTL)
		return nil
	})
	if err != nil {
		return 0, unavailable("record event", err)
	}
	return card.Val(), nil
}

func (s *RedisStore) CountEvents(ctx context.Context, key string, windowStart int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", exclusive(windowStart))
		card = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, unavailable("count events", err)
	}
	return card.Val(), nil
}

// exclusive renders an exclusive upper score bound: a marker scored exactly
// at the window start is still inside the window.
func exclusive(score int64) string {
	return "(" + strconv.FormatInt(score, 10)
}
