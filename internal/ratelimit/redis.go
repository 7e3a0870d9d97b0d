package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript is an atomic Lua script implementing a sliding window
// rate limiter over a sorted set.
//
//	KEYS[1] = redis key for this client
//	ARGV[1] = current unix timestamp (nanoseconds)
//	ARGV[2] = window size in nanoseconds
//	ARGV[3] = limit (max requests per window, burst-adjusted)
//
// Returns 1 if allowed, 0 if rate limited.
var slidingWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local now    = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit  = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

		local count = redis.call('ZCARD', key)
		if count >= limit then
			return 0
		end

		local member = tostring(now) .. tostring(math.random(1, 1000000))
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, math.ceil(window / 1000000))
		return 1
`)

// RedisLimiter implements the sliding window + burst limiter against a
// shared Redis instance, giving every gateway instance a consistent view of
// each client's request rate.
type RedisLimiter struct {
	rdb    *redis.Client
	window time.Duration
	limit  int
}

// NewRedisLimiter creates a RedisLimiter allowing limit requests per window
// per client key.
func NewRedisLimiter(rdb *redis.Client, window time.Duration, limit int) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, window: window, limit: limit}
}

// Allow implements Limiter. On Redis errors it fails open.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	window := r.window.Nanoseconds()

	result, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{redisKey(key)},
		now, window, r.limit,
	).Int()
	if err != nil {
		return true, nil
	}

	return result == 1, nil
}

// Close implements Limiter. The underlying *redis.Client is owned by the
// caller and is not closed here.
func (r *RedisLimiter) Close() {}

func redisKey(clientKey string) string {
	return fmt.Sprintf("ratelimit:client:%s", clientKey)
}
