package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/redis/go-redis/v9"
)

// Rule is the budget for one action: at most Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule throttles anything.
func (r Rule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Limiter counts hits per action and subject.
type Limiter interface {
	// Allow records one hit and returns ErrRateLimited when the budget is
	// exhausted. Disabled rules always allow.
	Allow(ctx context.Context, action, subject string, rule Rule) error
	// Reset forgets the subject's window for action.
	Reset(ctx context.Context, action, subject string) error
}

func subjectKey(action, subject string) string {
	return action + ":" + internal.HashToken(subject)
}

// Redis is a Limiter shared by every process using the same Redis.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis returns a Redis limiter. An empty prefix selects "grl".
func NewRedis(redisClient redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "grl"
	}
	return &Redis{redis: redisClient, prefix: prefix}
}

func (l *Redis) key(action, subject string) string {
	return l.prefix + ":" + subjectKey(action, subject)
}

// allowScript counts one hit and sets the window TTL in the same step. A
// counter found without a TTL gets one, so no key outlives its window.
const allowScript = `
local count = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`

var allowLua = redis.NewScript(allowScript)

func (l *Redis) Allow(ctx context.Context, action, subject string, rule Rule) error {
	if !rule.Enabled() {
		return nil
	}
	key := l.key(action, subject)

	window := rule.Window.Milliseconds()
	if window < 1 {
		window = 1
	}
	count, err := allowLua.Run(ctx, l.redis, []string{key}, window).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *Redis) Reset(ctx context.Context, action, subject string) error {
	if err := l.redis.Del(ctx, l.key(action, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local Limiter. Expired windows are swept on access.
type Memory struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
	hits    int
}

// NewMemory returns a Memory limiter. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{windows: make(map[string]window), now: now}
}

const sweepEvery = 1024

func (l *Memory) Allow(_ context.Context, action, subject string, rule Rule) error {
	if !rule.Enabled() {
		return nil
	}
	key := subjectKey(action, subject)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.hits++
	if l.hits%sweepEvery == 0 {
		for k, w := range l.windows {
			if !now.Before(w.resetAt) {
				delete(l.windows, k)
			}
		}
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(rule.Window)}
	}
	w.count++
	l.windows[key] = w
	if w.count > rule.Limit {
		return ErrRateLimited
	}
	return nil
}

func (l *Memory) Reset(_ context.Context, action, subject string) error {
	l.mu.Lock()
	delete(l.windows, subjectKey(action, subject))
	l.mu.Unlock()
	return nil
}
