package password

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestMulti(t *testing.T, primary Algorithm) *Multi {
	t.Helper()
	a, err := NewArgon2(fastArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	m, err := NewMulti(primary, map[Algorithm]Hasher{
		AlgorithmArgon2id: a,
		AlgorithmBcrypt:   newBcryptUnchecked(bcrypt.MinCost),
	})
	if err != nil {
		t.Fatalf("NewMulti: %v", err)
	}
	return m
}

func TestDetect(t *testing.T) {
	cases := map[string]Algorithm{
		"$argon2id$v=19$m=8192,t=1,p=1$a$b": AlgorithmArgon2id,
		"$2a$10$abcdefghijklmnopqrstuv":      AlgorithmBcrypt,
		"$2b$10$abcdefghijklmnopqrstuv":      AlgorithmBcrypt,
	}
	for digest, want := range cases {
		got, ok := Detect(digest)
		if !ok || got != want {
			t.Fatalf("Detect(%q) = %q,%v want %q", digest, got, ok, want)
		}
	}
	if _, ok := Detect("plaintext"); ok {
		t.Fatal("plaintext must not be detected")
	}
}

func TestMultiVerifiesBothFamilies(t *testing.T) {
	argonFirst := newTestMulti(t, AlgorithmArgon2id)
	bcryptFirst := newTestMulti(t, AlgorithmBcrypt)

	argonDigest, err := argonFirst.Hash("Migrate-me-1")
	if err != nil {
		t.Fatalf("argon hash: %v", err)
	}
	bcryptDigest, err := bcryptFirst.Hash("Migrate-me-1")
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}

	for _, digest := range []string{argonDigest, bcryptDigest} {
		ok, err := argonFirst.Verify("Migrate-me-1", digest)
		if err != nil || !ok {
			t.Fatalf("expected %q to verify, ok=%v err=%v", digest[:8], ok, err)
		}
	}

	if _, err := argonFirst.Verify("x", "md5$whatever"); !errors.Is(err, ErrUnsupportedDigest) {
		t.Fatalf("expected ErrUnsupportedDigest, got %v", err)
	}
}

func TestNewMultiRequiresPrimary(t *testing.T) {
	if _, err := NewMulti(AlgorithmBcrypt, map[Algorithm]Hasher{}); err == nil {
		t.Fatal("expected error for missing primary hasher")
	}
}

type blockingHasher struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingHasher) Hash(string) (string, error) {
	b.entered <- struct{}{}
	<-b.release
	return "digest", nil
}

func (b *blockingHasher) Verify(string, string) (bool, error) {
	return true, nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	h := &blockingHasher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	pool := NewPool(h, 1)

	done := make(chan error, 1)
	go func() {
		_, err := pool.Hash(context.Background(), "first")
		done <- err
	}()
	<-h.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Verify(ctx, "second", "digest"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while pool is saturated, got %v", err)
	}

	close(h.release)
	if err := <-done; err != nil {
		t.Fatalf("first hash failed: %v", err)
	}

	ok, err := pool.Verify(context.Background(), "third", "digest")
	if err != nil || !ok {
		t.Fatalf("expected slot to be released, ok=%v err=%v", ok, err)
	}
}

func TestPoolDefaultLimit(t *testing.T) {
	if NewPool(&blockingHasher{}, 0).Limit() < 1 {
		t.Fatal("default pool limit must be positive")
	}
}
