package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/Chromeox/CourseScout-sub015/internal/logging"
)

// takeScript checks every window and increments all of them only when each
// has room. ARGV holds (limit, windowMs) pairs in KEYS order. The reply is
// {allowed, count1, ttl1, count2, ttl2, ...} with counts taken before the
// increment.
var takeScript = redis.NewScript(`
local n = #KEYS
local counts = {}
local ttls = {}
local allowed = 1
for i = 1, n do
  local limit = tonumber(ARGV[2*i-1])
  local window = tonumber(ARGV[2*i])
  local ttl = redis.call("PTTL", KEYS[i])
  local count = 0
  if ttl < 0 then
    ttl = window
  else
    count = tonumber(redis.call("GET", KEYS[i]) or "0")
  end
  counts[i] = count
  ttls[i] = ttl
  if count + 1 > limit then
    allowed = 0
  end
end
if allowed == 1 then
  for i = 1, n do
    if counts[i] == 0 then
      redis.call("SET", KEYS[i], 1, "PX", ARGV[2*i])
    else
      redis.call("INCR", KEYS[i])
    end
  end
end
local out = {allowed}
for i = 1, n do
  out[#out+1] = counts[i]
  out[#out+1] = ttls[i]
end
return out
`)

// RedisLimiter shares windows between gateway replicas through Redis. When
// Fallback is set, Redis errors are absorbed by the in-memory limiter so an
// outage degrades to per-replica limits instead of failing requests.
type RedisLimiter struct {
	Client   *redis.Client
	Prefix   string
	Fallback *MemoryLimiter

	now      func() time.Time
	warnOnce rate.Sometimes
}

func NewRedisLimiter(client *redis.Client, prefix string, fallback *MemoryLimiter) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisLimiter{
		Client:   client,
		Prefix:   prefix,
		Fallback: fallback,
		now:      time.Now,
		warnOnce: rate.Sometimes{Interval: 10 * time.Second},
	}
}

// redisKey hash-tags the part of key before "|" so that every window of one
// API key lands in the same cluster slot.
func (l *RedisLimiter) redisKey(key string) string {
	head, rest, found := strings.Cut(key, "|")
	if !found {
		return l.Prefix + "{" + key + "}"
	}
	return l.Prefix + "{" + head + "}|" + rest
}

func (l *RedisLimiter) Take(ctx context.Context, windows []Window) (Decision, error) {
	ws := normalize(windows)
	if len(ws) == 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	keys := make([]string, len(ws))
	args := make([]interface{}, 0, 2*len(ws))
	for i, w := range ws {
		keys[i] = l.redisKey(w.Key)
		args = append(args, w.Quota.Limit, w.Quota.Window.Milliseconds())
	}

	res, err := takeScript.Run(ctx, l.Client, keys, args...).Int64Slice()
	if err == nil && len(res) != 1+2*len(ws) {
		err = fmt.Errorf("unexpected rate limit reply length %d", len(res))
	}
	if err != nil {
		if l.Fallback != nil {
			l.warnOnce.Do(func() {
				logging.Warningf("redis rate limiter unavailable, using in-memory fallback: %v", err)
			})
			return l.Fallback.Take(ctx, ws)
		}
		return Decision{}, fmt.Errorf("rate limit take: %w", err)
	}

	now := l.now()
	states := make([]windowState, len(ws))
	for i, w := range ws {
		states[i] = windowState{
			key:     w.Key,
			count:   int(res[1+2*i]),
			limit:   w.Quota.Limit,
			size:    w.Quota.Window,
			resetAt: now.Add(time.Duration(res[2+2*i]) * time.Millisecond),
		}
	}
	return decide(states), nil
}

func (l *RedisLimiter) Usage(ctx context.Context, key string) (Usage, error) {
	rk := l.redisKey(key)
	pipe := l.Client.Pipeline()
	getCmd := pipe.Get(ctx, rk)
	ttlCmd := pipe.PTTL(ctx, rk)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Usage{}, fmt.Errorf("rate limit usage: %w", err)
	}

	u := Usage{Key: key}
	count, err := getCmd.Int()
	if err == redis.Nil {
		return u, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("rate limit usage: %w", err)
	}
	u.Count = count
	if ttl := ttlCmd.Val(); ttl > 0 {
		u.ResetAt = l.now().Add(ttl)
	}
	return u, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.Client.Del(ctx, l.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	if l.Fallback != nil {
		return l.Fallback.Reset(ctx, key)
	}
	return nil
}
