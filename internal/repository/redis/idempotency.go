package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock      = "LOCK"
	idemResPrefix = "RES:"
)

// IdempotencyStore remembers the response of a request made with an
// Idempotency-Key. A key is first locked while the request runs, then
// replaced by the stored result together with a fingerprint of the request
// body, so a reused key can be told apart from a retry.
type IdempotencyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock claims key for the running request. It returns false if the
// key is held or already carries a result.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
}

// SaveResult stores the response of the request identified by fingerprint.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key, fingerprint, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResPrefix+fingerprint+":"+jsonPayload, s.ttl).Err()
}

// GetResult returns the stored response and the fingerprint of the request
// that produced it. ok is false while the key is locked or absent.
func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (payload, fingerprint string, ok bool, err error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}

	rest, found := strings.CutPrefix(v, idemResPrefix)
	if !found {
		return "", "", false, nil
	}

	fingerprint, payload, found = strings.Cut(rest, ":")
	if !found {
		return "", "", false, nil
	}

	return payload, fingerprint, true, nil
}

func (s *IdempotencyStore) IsLocked(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return v == idemLock, nil
}

// Release drops the key so a failed request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
