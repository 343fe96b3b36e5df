package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	accessSecret  = []byte("access-secret-access-secret-0123456789")
	refreshSecret = []byte("refresh-secret-refresh-secret-987654321")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, class Class, secret []byte, clock *fakeClock) *Manager {
	t.Helper()
	cfg := Config{
		Class:         class,
		TTL:           15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    secret,
		Issuer:        "goidentity",
		Audience:      "goidentity-clients",
	}
	if clock != nil {
		cfg.Now = clock.Now
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueAndParse(t *testing.T) {
	m := newHSManager(t, ClassAccess, accessSecret, nil)

	token, exp, err := m.Issue("acct-1", "sess-1", "standard")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 14*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "acct-1" || claims.SessionID != "sess-1" || claims.Role != "standard" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Class != ClassAccess {
		t.Fatalf("unexpected class %q", claims.Class)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
}

func TestIssueProducesDistinctTokens(t *testing.T) {
	m := newHSManager(t, ClassRefresh, refreshSecret, nil)
	a, _, _ := m.Issue("acct-1", "s", "")
	b, _, _ := m.Issue("acct-1", "s", "")
	if a == b {
		t.Fatal("tokens issued in the same second must differ")
	}
}

func TestParseExpiredIsClassified(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, ClassAccess, accessSecret, clock)

	token, _, err := m.Issue("acct-1", "s", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.now = clock.now.Add(16 * time.Minute)
	_, err = m.Parse(token)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if errors.Is(err, ErrInvalid) {
		t.Fatal("expired token must not also be classified invalid")
	}
}

func TestParseRejectsOtherClassSecret(t *testing.T) {
	access := newHSManager(t, ClassAccess, accessSecret, nil)
	refresh := newHSManager(t, ClassRefresh, refreshSecret, nil)

	refreshToken, _, err := refresh.Issue("acct-1", "s", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := access.Parse(refreshToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for refresh token on access manager, got %v", err)
	}
}

func TestParseRejectsClassMismatchWithSharedSecret(t *testing.T) {
	access := newHSManager(t, ClassAccess, accessSecret, nil)
	refresh := newHSManager(t, ClassRefresh, accessSecret, nil)

	refreshToken, _, err := refresh.Issue("acct-1", "s", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := access.Parse(refreshToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected class tag to be enforced, got %v", err)
	}
}

func TestParseIssuerAudience(t *testing.T) {
	m := newHSManager(t, ClassAccess, accessSecret, nil)

	sign := func(issuer, audience string) string {
		claims := Claims{Class: ClassAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "acct-1",
			Issuer:    issuer,
			Audience:  gjwt.ClaimStrings{audience},
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(accessSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := m.Parse(sign("goidentity", "goidentity-clients")); err != nil {
		t.Fatalf("expected matching issuer/audience to parse: %v", err)
	}
	if _, err := m.Parse(sign("other", "goidentity-clients")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected wrong issuer to fail, got %v", err)
	}
	if _, err := m.Parse(sign("goidentity", "other")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected wrong audience to fail, got %v", err)
	}
}

func TestParseRejectsTamperedAndGarbage(t *testing.T) {
	m := newHSManager(t, ClassAccess, accessSecret, nil)
	token, _, _ := m.Issue("acct-1", "s", "")

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	for _, bad := range []string{"", "garbage", tampered} {
		if _, err := m.Parse(bad); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", bad, err)
		}
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	edManager, err := NewManager(Config{
		Class:         ClassAccess,
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	hsToken, _, err := newHSManager(t, ClassAccess, accessSecret, nil).Issue("acct-1", "s", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := edManager.Parse(hsToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected algorithm mismatch to be rejected, got %v", err)
	}

	edToken, _, err := edManager.Issue("acct-2", "s", "moderator")
	if err != nil {
		t.Fatalf("ed25519 Issue: %v", err)
	}
	claims, err := edManager.Parse(edToken)
	if err != nil || claims.Subject != "acct-2" {
		t.Fatalf("ed25519 round trip failed: claims=%+v err=%v", claims, err)
	}
}

func TestVerifyOnlyManagerCannotIssue(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m, err := NewManager(Config{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, _, err := m.Issue("acct-1", "", ""); err == nil {
		t.Fatal("expected verify-only manager to refuse issuing")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{Class: "other", TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: accessSecret},
		{Class: ClassAccess, TTL: 0, SigningMethod: MethodHS256, PrivateKey: accessSecret},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: "rs256", PrivateKey: accessSecret},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: accessSecret, Leeway: time.Hour},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodEd25519},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
