package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// tokenBucketScript refills by elapsed time, spends one token when available
// and returns {allowed, tokens}. Tokens are returned as a string because Redis
// truncates Lua numbers to integers.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens)}
`

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Bucket spends one token for key, refilling at rate tokens per second up to burst.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*Result, error)
}

// RedisBucket shares buckets between every process using the same Redis.
type RedisBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisBucket(client *redis.Client) *RedisBucket {
	if client == nil {
		return nil
	}
	return &RedisBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (b *RedisBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*Result, error) {
	if b == nil || b.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if err := validate(key, rate, burst); err != nil {
		return nil, err
	}

	res, err := b.script.Run(ctx, b.client, []string{key},
		rate,
		burst,
		int64(bucketTTL(rate, burst)/time.Millisecond),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, errors.New("invalid rate limit script response")
	}

	allowed := toInt(res[0]) == 1
	remaining := toFloat(res[1])
	return newResult(allowed, remaining, rate, burst), nil
}

func validate(key string, rate float64, burst int) error {
	if key == "" {
		return errors.New("rate limiter key is empty")
	}
	if rate <= 0 {
		return errors.New("rate limiter rate must be positive")
	}
	if burst <= 0 {
		return errors.New("rate limiter burst must be positive")
	}
	return nil
}

func newResult(allowed bool, remaining, rate float64, burst int) *Result {
	result := &Result{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(remaining),
	}
	if !allowed {
		if needed := 1 - remaining; needed > 0 {
			result.RetryAfter = time.Duration(needed / rate * float64(time.Second))
		}
	}
	return result
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
