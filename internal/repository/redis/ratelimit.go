package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Hits live in a sorted set scored by their time in ms. A hit is only
// recorded when it is admitted, so a caller hammering a full window does not
// push its own reset further out.
//
// KEYS[1] window key
// ARGV    now_ms, window_ms, limit, hit id
// returns {admitted, hits in window, retry_ms}
const luaAdmit = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

local hits = redis.call('ZCARD', KEYS[1])
if hits >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  if retry < 0 then retry = 0 end
  return {0, hits, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, hits + 1, 0}
`

var admitScript = redis.NewScript(luaAdmit)

// SlidingWindowLimiter caps how many requests a caller may make within a
// rolling window. Callers are identified by the key suffix passed to Allow.
type SlidingWindowLimiter struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
	hitID  func() string
}

func NewSlidingWindowLimiter(
	rdb redis.Scripter,
	prefix string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
		hitID:  uuid.NewString,
	}
}

// NewBookingLimiter limits ticket bookings per user.
func NewBookingLimiter(rdb redis.Scripter, limit int, window time.Duration) *SlidingWindowLimiter {
	return NewSlidingWindowLimiter(rdb, ns+":rl:book", limit, window)
}

// Allow records a hit for suffix if it fits in the window. retryAfter is
// set when the hit is refused. A limit of zero or less disables the limiter.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, suffix string) (allowed bool, hits int64, retryAfter time.Duration, err error) {
	const op = "redis.SlidingWindowLimiter.Allow"

	if l == nil || l.limit <= 0 {
		return true, 0, 0, nil
	}

	res, err := admitScript.Run(ctx, l.rdb,
		[]string{l.prefix + ":" + suffix},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, l.hitID(),
	).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("%s: unexpected script reply %v", op, res)
	}

	return res[0] == 1, res[1], time.Duration(res[2]) * time.Millisecond, nil
}
