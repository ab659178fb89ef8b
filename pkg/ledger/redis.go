package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	nonceKeyPrefix   = "triad:nonce:"
	failureKeyPrefix = "triad:failures:"
)

// NewRedisClient connects to a single Redis node.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisNonceLedger implements NonceLedger with SET NX so that several gate
// replicas share one anti-replay ledger.
type RedisNonceLedger struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisNonceLedger creates a Redis-backed nonce ledger. A zero retention
// stores nonces without expiry.
func NewRedisNonceLedger(client redis.UniversalClient, retention time.Duration) *RedisNonceLedger {
	return &RedisNonceLedger{client: client, retention: retention}
}

// CheckAndRecord implements NonceLedger.
func (l *RedisNonceLedger) CheckAndRecord(ctx context.Context, nonce string, nowMs int64) (bool, error) {
	ok, err := l.client.SetNX(ctx, nonceKeyPrefix+nonce, nowMs, l.retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis nonce ledger: %w", err)
	}
	return ok, nil
}

// Len implements NonceLedger by scanning the nonce key space.
func (l *RedisNonceLedger) Len(ctx context.Context) (int, error) {
	return countKeys(ctx, l.client, nonceKeyPrefix+"*")
}

// redisFailureScript applies the windowed failure policy atomically.
// KEYS[1] = failure key
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
var redisFailureScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local state = redis.call("HMGET", key, "count", "window_start")
local count = tonumber(state[1])
local start = tonumber(state[2])

if not count or not start or (now > start and now - start > window) then
    count = 1
    start = now
else
    count = count + 1
end

redis.call("HSET", key, "count", count, "window_start", start)
redis.call("PEXPIRE", key, window)

return count
`)

// RedisFailureLedger implements FailureLedger with a Lua script so that the
// increment-and-read is a single Redis operation.
type RedisFailureLedger struct {
	client redis.UniversalClient
	window time.Duration
}

// NewRedisFailureLedger creates a Redis-backed failure ledger. A non-positive
// window falls back to DefaultFailureWindow.
func NewRedisFailureLedger(client redis.UniversalClient, window time.Duration) *RedisFailureLedger {
	if window <= 0 {
		window = DefaultFailureWindow
	}
	return &RedisFailureLedger{client: client, window: window}
}

// RecordFailure implements FailureLedger.
func (l *RedisFailureLedger) RecordFailure(ctx context.Context, fingerprint string, nowMs int64) (int, error) {
	res, err := redisFailureScript.Run(ctx, l.client,
		[]string{failureKeyPrefix + fingerprint},
		nowMs, l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis failure ledger: %w", err)
	}
	if res > int64(maxCount) {
		return maxCount, nil
	}
	return int(res), nil
}

// Len implements FailureLedger by scanning the failure key space.
func (l *RedisFailureLedger) Len(ctx context.Context) (int, error) {
	return countKeys(ctx, l.client, failureKeyPrefix+"*")
}

func countKeys(ctx context.Context, client redis.UniversalClient, pattern string) (int, error) {
	n := 0
	iter := client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan %q: %w", pattern, err)
	}
	return n, nil
}
