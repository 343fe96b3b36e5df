package internal

import (
	"strings"
	"testing"
)

func TestNewOpaqueToken(t *testing.T) {
	raw, digest, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	if !ValidOpaqueToken(raw) {
		t.Fatalf("token %q does not carry %d bytes", raw, OpaqueTokenBytes)
	}
	if digest != HashToken(raw) {
		t.Fatal("digest must be the hash of the raw token")
	}
	if len(digest) != 64 || strings.Contains(digest, raw) {
		t.Fatalf("unexpected digest %q", digest)
	}

	other, _, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	if other == raw {
		t.Fatal("tokens must be unique")
	}
}

func TestValidOpaqueTokenRejectsJunk(t *testing.T) {
	for _, raw := range []string{"", "abc", "!!!not-base64!!!", strings.Repeat("A", 10)} {
		if ValidOpaqueToken(raw) {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestDigestsEqual(t *testing.T) {
	a := HashToken("one")
	if !DigestsEqual(a, HashToken("one")) {
		t.Fatal("expected equal digests")
	}
	if DigestsEqual(a, HashToken("two")) {
		t.Fatal("expected different digests")
	}
	if DigestsEqual("", "") {
		t.Fatal("empty digests must never match")
	}
}

func TestParseID(t *testing.T) {
	id := NewID()
	if got, err := ParseID(id); err != nil || got != id {
		t.Fatalf("ParseID(%q) = %q, %v", id, got, err)
	}
	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Fatal("expected invalid id error")
	}
}

// FuzzValidOpaqueToken checks the shape filter never panics.
func FuzzValidOpaqueToken(f *testing.F) {
	raw, _, _ := NewOpaqueToken()
	f.Add(raw)
	f.Add("")
	f.Add("aGVsbG8")
	f.Fuzz(func(t *testing.T, s string) {
		_ = ValidOpaqueToken(s)
		if len(HashToken(s)) != 64 {
			t.Fatal("digest length must be constant")
		}
	})
}
