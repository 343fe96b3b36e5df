package goIdentity

import (
	"testing"

	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSecurityReportReflectsConfig(t *testing.T) {
	env := newTestEnv(t)

	r := env.engine.SecurityReport()
	if r.SigningAlgorithm != "hs256" {
		t.Fatalf("expected hs256, got %q", r.SigningAlgorithm)
	}
	if !r.LockoutActive || r.LockoutThreshold != 5 {
		t.Fatalf("unexpected lockout posture: %+v", r)
	}
	if r.RateLimitingActive || r.RateLimitBackend != "none" {
		t.Fatalf("rate limiting should be off in test config: %+v", r)
	}
	// Test hashing parameters are deliberately weak.
	if len(r.Warnings) == 0 {
		t.Fatal("expected warnings for test argon2 parameters")
	}
}

func TestSecurityReportRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	engine, err := New().WithConfig(cfg).WithStore(memory.New()).WithRedis(client).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if _, ok := engine.limiter.(*rate.Redis); !ok {
		t.Fatalf("expected redis limiter, got %T", engine.limiter)
	}
	r := engine.SecurityReport()
	if !r.RateLimitingActive || r.RateLimitBackend != "redis" {
		t.Fatalf("unexpected rate limit posture: %+v", r)
	}
}
