package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes entries older than the window, then admits the
// call when fewer than limit entries remain. Scores are milliseconds.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])

if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return {1, limit - count - 1, 0}
end

local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local retry = window
if oldest[2] ~= nil then
  retry = tonumber(oldest[2]) + window - now
end
if retry < 1 then
  retry = 1
end
return {0, 0, retry}
`

// RedisLimiter keeps the log in a sorted set per key so every API replica
// shares the same counts.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	rule   Rule
	now    Clock
}

// NewRedisLimiter constructs the limiter. A nil clock uses time.Now.
func NewRedisLimiter(client *redis.Client, rule Rule, clock Clock) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client required")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(slidingWindowScript),
		rule:   rule,
		now:    clock,
	}, nil
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, identity, endpoint string) (Decision, error) {
	k, err := key(identity, endpoint)
	if err != nil {
		return Decision{}, err
	}
	now := l.now().UnixMilli()
	res, err := l.script.Run(ctx, l.client, []string{k},
		now,
		l.rule.Window.Milliseconds(),
		l.rule.Limit,
		fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: run script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, errors.New("ratelimit: invalid script response")
	}
	return Decision{
		Allowed:    res[0] == 1,
		Limit:      l.rule.Limit,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
