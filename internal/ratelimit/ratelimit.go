// Package ratelimit implements a per-identifier sliding-window quota on Redis.
//
// Each identifier owns a sorted set whose members are consumed units scored by
// their millisecond timestamp. A unit counts against the quota until exactly
// one window has passed since it was consumed.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayush/fitness-ai/backend/internal/models"
)

// slidingWindow trims expired units, then admits one more if the quota allows.
// Returns {success, remaining, resetUnixMilli}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", tostring(now - window))
local count = redis.call("ZCARD", key)
local success = 0
if count < limit then
  redis.call("ZADD", key, tostring(now), member)
  count = count + 1
  success = 1
end
redis.call("PEXPIRE", key, tostring(window))

local reset = now + window
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {success, limit - count, reset}
`)

// Result is the outcome of consuming one unit.
type Result struct {
	Success   bool
	Limit     int
	Remaining int
	// Reset is when the oldest counted unit leaves the window.
	Reset time.Time
	// RetryAfter is Reset measured from the limiter's clock.
	RetryAfter time.Duration
}

// Recorder receives every limiter decision.
type Recorder interface {
	Record(ctx context.Context, event models.RateLimitEvent) error
}

// Limiter is a sliding-window limiter. It holds no per-identifier state in
// process; all counting happens inside a single Redis script call.
type Limiter struct {
	rdb      redis.Scripter
	limit    int
	window   time.Duration
	prefix   string
	now      func() time.Time
	recorder Recorder
	log      *zap.Logger
}

type Option func(*Limiter)

// WithPrefix sets the Redis key prefix. An empty prefix keeps the default.
func WithPrefix(prefix string) Option {
	return func(l *Limiter) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithRecorder enables analytics.
func WithRecorder(r Recorder) Option {
	return func(l *Limiter) { l.recorder = r }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// NewSlidingWindow allows limit units per identifier within any window-long
// interval.
func NewSlidingWindow(rdb redis.Scripter, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: "ratelimit",
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit consumes one unit for identifier.
func (l *Limiter) Limit(ctx context.Context, identifier string) (Result, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()

	vals, err := slidingWindow.Run(ctx, l.rdb,
		[]string{l.key(identifier)},
		nowMs, l.window.Milliseconds(), l.limit, member,
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit %s: %w", identifier, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("ratelimit %s: unexpected script reply %v", identifier, vals)
	}

	reset := time.UnixMilli(vals[2])
	res := Result{
		Success:    vals[0] == 1,
		Limit:      l.limit,
		Remaining:  max(int(vals[1]), 0),
		Reset:      reset,
		RetryAfter: max(reset.Sub(now), 0),
	}
	l.record(ctx, identifier, now, res)
	return res, nil
}

func (l *Limiter) key(identifier string) string {
	return l.prefix + ":" + identifier
}

func (l *Limiter) record(ctx context.Context, identifier string, at time.Time, res Result) {
	if l.recorder == nil {
		return
	}
	err := l.recorder.Record(ctx, models.RateLimitEvent{
		Identifier: identifier,
		Success:    res.Success,
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		Reset:      res.Reset,
		At:         at,
	})
	if err != nil {
		l.log.Warn("ratelimit analytics record failed",
			zap.String("identifier", identifier), zap.Error(err))
	}
}
