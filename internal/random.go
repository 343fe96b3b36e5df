package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// OpaqueTokenBytes is the entropy of verification and reset tokens.
const OpaqueTokenBytes = 32

// NewOpaqueToken returns a random single-use token and its stored digest.
// The raw value is handed to the user once and never persisted.
func NewOpaqueToken() (raw string, digest string, err error) {
	var secret [OpaqueTokenBytes]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", err
	}

	raw = base64.RawURLEncoding.EncodeToString(secret[:])
	return raw, HashToken(raw), nil
}

// HashToken is the one-way digest stored for opaque tokens and refresh
// tokens: lowercase hex sha256 of the raw string.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ValidOpaqueToken reports whether raw has the shape NewOpaqueToken emits.
// It lets callers reject junk before touching the store.
func ValidOpaqueToken(raw string) bool {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	return err == nil && len(decoded) == OpaqueTokenBytes
}

// DigestsEqual compares two hex digests in constant time.
func DigestsEqual(a, b string) bool {
	if len(a) != len(b) || a == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewID returns a random UUIDv4 string for accounts and sessions.
func NewID() string {
	return uuid.NewString()
}

// ParseID validates an identifier produced by NewID.
func ParseID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", errors.New("invalid identifier")
	}
	return parsed.String(), nil
}
