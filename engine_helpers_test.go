package goIdentity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/store/memory"
)

const (
	testEmail    = "a@x.com"
	testPassword = "Str0ng!Pw"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail error
}

func (m *fakeMailer) Deliver(_ context.Context, msg mail.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	m.sent = append(m.sent, msg)
	return "msg-" + string(msg.Kind), nil
}

func (m *fakeMailer) setFailure(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *fakeMailer) count(kind mail.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.sent {
		if msg.Kind == kind {
			n++
		}
	}
	return n
}

// lastToken returns the token of the most recent message of kind.
func (m *fakeMailer) lastToken(t *testing.T, kind mail.Kind) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i].Data[mail.DataToken]
		}
	}
	t.Fatalf("no %s message sent", kind)
	return ""
}

var errMailDown = errors.New("smtp relay unavailable")

type testEnv struct {
	engine *Engine
	store  *memory.Store
	mailer *fakeMailer
	clock  *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("0123456789abcdef0123456789abcdef-access")
	cfg.JWT.RefreshSecret = []byte("0123456789abcdef0123456789abcdef-refresh")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 10
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	env := &testEnv{
		store:  memory.New(),
		mailer: &fakeMailer{},
		clock:  newTestClock(),
	}
	engine, err := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithMailer(env.mailer).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) register(t *testing.T, email string) *Grant {
	t.Helper()
	grant, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: testPassword,
		Name:     "Ada",
	})
	if err != nil {
		t.Fatalf("Register(%q): %v", email, err)
	}
	return grant
}

func (env *testEnv) login(t *testing.T, email, password string) *Grant {
	t.Helper()
	grant, err := env.engine.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Login(%q): %v", email, err)
	}
	return grant
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, got, err)
	}
}

func assertIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
