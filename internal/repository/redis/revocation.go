package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevocations holds the IDs of tokens that were logged out. Entries
// expire together with the token they block.
type TokenRevocations struct {
	rdb redis.Cmdable
}

func NewTokenRevocations(rdb redis.Cmdable) *TokenRevocations {
	return &TokenRevocations{rdb: rdb}
}

func (r *TokenRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	return r.rdb.Set(ctx, KeyRevokedToken(jti), 1, ttl).Err()
}

func (r *TokenRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, KeyRevokedToken(jti)).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}
