package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = now (unix seconds, microsecond precision)
// ARGV[4] = ttl seconds
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)

return {allowed, tostring(tokens)}
`)

// Redis is a Limiter whose buckets live in Redis, shared by every instance
// pointed at the same server.
type Redis struct {
	client redis.UniversalClient
	policy Policy
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, p Policy) (*Redis, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Redis{client: client, policy: p, prefix: "certified:ratelimit:", now: time.Now}, nil
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr string, p Policy) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis limiter: ping %s: %w", addr, err)
	}
	return NewRedis(client, p)
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(r.now().UnixMicro()) / 1e6
	// an idle bucket is full again after capacity/rate seconds
	ttl := int(math.Ceil(float64(r.policy.Burst)/r.policy.RefillPerSecond)) + 1

	res, err := tokenBucketScript.Run(ctx, r.client, []string{r.prefix + key},
		r.policy.RefillPerSecond, r.policy.Burst, now, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("redis limiter: unexpected script reply %T", res)
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
