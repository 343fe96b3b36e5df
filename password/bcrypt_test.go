package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	h := newBcryptUnchecked(bcrypt.MinCost)

	digest, err := h.Hash("Str0ng!Pw")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(digest, "$2a$") {
		t.Fatalf("unexpected bcrypt prefix: %s", digest)
	}

	ok, err := h.Verify("Str0ng!Pw", digest)
	if err != nil || !ok {
		t.Fatalf("expected verify success, ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify("wrong", digest)
	if err != nil {
		t.Fatalf("mismatch must not be an error: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch")
	}
}

func TestBcryptRejectsLongPassword(t *testing.T) {
	h := newBcryptUnchecked(bcrypt.MinCost)
	if _, err := h.Hash(strings.Repeat("a", MaxBcryptPasswordBytes+1)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", MaxBcryptPasswordBytes)); err != nil {
		t.Fatalf("72 bytes must be accepted: %v", err)
	}
}

func TestBcryptMalformedDigest(t *testing.T) {
	h := newBcryptUnchecked(bcrypt.MinCost)
	if _, err := h.Verify("x", "$2a$short"); err == nil {
		t.Fatal("expected error for malformed digest")
	}
}

func TestNewBcryptCostBounds(t *testing.T) {
	if _, err := NewBcrypt(BcryptConfig{Cost: 4}); err == nil {
		t.Fatal("expected low cost to be rejected")
	}
	h, err := NewBcrypt(BcryptConfig{})
	if err != nil {
		t.Fatalf("NewBcrypt default: %v", err)
	}
	if h.Cost() != DefaultBcryptCost {
		t.Fatalf("expected default cost %d, got %d", DefaultBcryptCost, h.Cost())
	}
}
