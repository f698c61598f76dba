package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"correspondence/internal/ratelimit/models"
)

const (
	failuresKeyPrefix = "correspondence:login:failures:"
	lockKeyPrefix     = "correspondence:login:lock:"
)

// RedisStore shares lockouts between instances. Counters and locks carry
// their own TTL, so nothing needs sweeping.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// RecordFailure increments the counter; the first failure in a window sets
// its expiry.
func (s *RedisStore) RecordFailure(ctx context.Context, key string, _ time.Time, window time.Duration) (*models.Lockout, error) {
	fk := failuresKeyPrefix + key
	n, err := s.client.Incr(ctx, fk).Result()
	if err != nil {
		return nil, fmt.Errorf("record login failure: %w", err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, fk, window).Err(); err != nil {
			return nil, fmt.Errorf("expire login failures: %w", err)
		}
	}
	l := &models.Lockout{Key: key, Failures: int(n)}
	if l.LockedUntil, err = s.lockedUntil(ctx, key); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *RedisStore) Lock(ctx context.Context, key string, now time.Time, d time.Duration) error {
	until := now.Add(d)
	if err := s.client.Set(ctx, lockKeyPrefix+key, strconv.FormatInt(until.UnixMilli(), 10), d).Err(); err != nil {
		return fmt.Errorf("lock login: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string, _ time.Time) (*models.Lockout, error) {
	failures, err := s.client.Get(ctx, failuresKeyPrefix+key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read login failures: %w", err)
	}
	until, err := s.lockedUntil(ctx, key)
	if err != nil {
		return nil, err
	}
	if failures == 0 && until == nil {
		return nil, nil
	}
	return &models.Lockout{Key: key, Failures: failures, LockedUntil: until}, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, failuresKeyPrefix+key, lockKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}

func (s *RedisStore) lockedUntil(ctx context.Context, key string) (*time.Time, error) {
	ms, err := s.client.Get(ctx, lockKeyPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read login lock: %w", err)
	}
	until := time.UnixMilli(ms).UTC()
	return &until, nil
}
