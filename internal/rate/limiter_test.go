package rate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func exerciseWindow(t *testing.T, l Limiter, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()
	rule := Rule{Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "login", "10.0.0.1", rule); err != nil {
			t.Fatalf("hit %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "login", "10.0.0.1", rule); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(ctx, "login", "10.0.0.2", rule); err != nil {
		t.Fatalf("other subject must have its own window: %v", err)
	}
	if err := l.Allow(ctx, "register", "10.0.0.1", rule); err != nil {
		t.Fatalf("other action must have its own window: %v", err)
	}

	advance(time.Minute + time.Second)
	if err := l.Allow(ctx, "login", "10.0.0.1", rule); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = l.Allow(ctx, "login", "10.0.0.1", rule)
	}
	if err := l.Reset(ctx, "login", "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Allow(ctx, "login", "10.0.0.1", rule); err != nil {
		t.Fatalf("reset should clear the window: %v", err)
	}
}

func TestRedisFixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	exerciseWindow(t, NewRedis(client, "test"), mr.FastForward)
}

func TestMemoryFixedWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewMemory(func() time.Time { return now })
	exerciseWindow(t, l, func(d time.Duration) { now = now.Add(d) })
}

func TestDisabledRuleAlwaysAllows(t *testing.T) {
	l := NewMemory(nil)
	for i := 0; i < 10; i++ {
		if err := l.Allow(context.Background(), "login", "x", Rule{}); err != nil {
			t.Fatalf("disabled rule limited: %v", err)
		}
	}
}

func TestRedisKeysHideSubject(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedis(client, "")
	if err := l.Allow(context.Background(), "forgot_password", "alice@example.com", Rule{Limit: 1, Window: time.Minute}); err != nil {
		t.Fatalf("allow: %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	if !strings.HasPrefix(keys[0], "grl:forgot_password:") || strings.Contains(keys[0], "alice") {
		t.Fatalf("unexpected key %q", keys[0])
	}
	if ttl := mr.TTL(keys[0]); ttl != time.Minute {
		t.Fatalf("expected window TTL, got %v", ttl)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	err = NewRedis(client, "test").Allow(context.Background(), "login", "x", Rule{Limit: 1, Window: time.Minute})
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestRedisCounterAlwaysHasTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedis(client, "test")
	ctx := context.Background()
	rule := Rule{Limit: 2, Window: time.Minute}
	key := l.key("login", "10.0.0.1")

	for i := 0; i < 5; i++ {
		_ = l.Allow(ctx, "login", "10.0.0.1", rule)
		if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
			t.Fatalf("hit %d: expected TTL within window, got %v", i+1, ttl)
		}
		mr.FastForward(10 * time.Second)
	}

	// A counter stranded without a TTL is repaired by the next hit
	// instead of throttling its subject forever.
	stale := l.key("login", "10.0.0.9")
	if err := mr.Set(stale, "50"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.Allow(ctx, "login", "10.0.0.9", rule); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ttl := mr.TTL(stale); ttl != time.Minute {
		t.Fatalf("expected stranded counter to get the window TTL, got %v", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "login", "10.0.0.9", rule); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}
