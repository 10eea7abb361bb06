// Package ratelimit provides fixed one-second window request limiters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter counts requests per key in one-second windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

func window(now time.Time) (sec int64, reset time.Time) {
	sec = now.Unix()
	return sec, time.Unix(sec+1, 0).UTC()
}

// MemoryLimiter keeps counters in process. Used when Redis is not configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]counter
}

type counter struct {
	sec   int64
	count int
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]counter)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true, Limit: limit}, nil
	}
	sec, reset := window(now)

	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.windows[key]
	if c.sec != sec {
		// prune stale windows
		if len(l.windows) > 10000 {
			for k, v := range l.windows {
				if v.sec < sec {
					delete(l.windows, k)
				}
			}
		}
		c = counter{sec: sec}
	}
	if c.count >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, Reset: reset}, nil
	}
	c.count++
	l.windows[key] = c
	return Result{Allowed: true, Limit: limit, Remaining: limit - c.count, Reset: reset}, nil
}

// incrWithTTL increments the window key and sets its expiry on first use.
var incrWithTTL = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter shares counters across server instances.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter; keys are namespaced by prefix.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true, Limit: limit}, nil
	}
	sec, reset := window(now)
	redisKey := fmt.Sprintf("%s:%d", key, sec)
	if l.prefix != "" {
		redisKey = l.prefix + ":" + redisKey
	}
	n, err := incrWithTTL.Run(ctx, l.client, []string{redisKey}, 2).Int64()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if n > int64(limit) {
		return Result{Allowed: false, Limit: limit, Remaining: 0, Reset: reset}, nil
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - int(n), Reset: reset}, nil
}

// ErrNoBackend is returned by Fallback when both limiters are nil.
var ErrNoBackend = errors.New("rate limit: no backend")

// Fallback uses Primary and falls back to Secondary when Primary errors,
// so a Redis outage degrades to per-instance limits instead of failing requests.
type Fallback struct {
	Primary   Limiter
	Secondary Limiter
}

func (f Fallback) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if f.Primary != nil {
		res, err := f.Primary.Allow(ctx, key, limit, now)
		if err == nil || f.Secondary == nil {
			return res, err
		}
	}
	if f.Secondary != nil {
		return f.Secondary.Allow(ctx, key, limit, now)
	}
	return Result{}, ErrNoBackend
}
