package password

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyPassword is returned when hashing an empty plaintext.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrUnsupportedDigest is returned when no configured algorithm recognises a digest.
	ErrUnsupportedDigest = errors.New("unsupported password digest")
)

// Hasher produces and checks password digests.
//
// Verify reports a mismatch as (false, nil). An error means the digest
// itself could not be parsed.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Algorithm names a digest family.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// Detect reports which algorithm produced encoded.
func Detect(encoded string) (Algorithm, bool) {
	switch {
	case strings.HasPrefix(encoded, "$"+argon2ID+"$"):
		return AlgorithmArgon2id, true
	case strings.HasPrefix(encoded, "$2a$"),
		strings.HasPrefix(encoded, "$2b$"),
		strings.HasPrefix(encoded, "$2y$"):
		return AlgorithmBcrypt, true
	default:
		return "", false
	}
}

// Multi hashes with a primary algorithm and verifies digests of every
// registered algorithm.
type Multi struct {
	primary   Algorithm
	verifiers map[Algorithm]Hasher
}

// NewMulti builds a Multi that hashes with primary. Additional hashers are
// used for verification only; when two share an algorithm the later wins.
func NewMulti(primary Algorithm, hashers map[Algorithm]Hasher) (*Multi, error) {
	if _, ok := hashers[primary]; !ok {
		return nil, errors.New("primary password algorithm has no hasher")
	}
	verifiers := make(map[Algorithm]Hasher, len(hashers))
	for alg, h := range hashers {
		if h == nil {
			return nil, errors.New("nil hasher for algorithm " + string(alg))
		}
		verifiers[alg] = h
	}
	return &Multi{primary: primary, verifiers: verifiers}, nil
}

func (m *Multi) Hash(password string) (string, error) {
	return m.verifiers[m.primary].Hash(password)
}

func (m *Multi) Verify(password, encoded string) (bool, error) {
	alg, ok := Detect(encoded)
	if !ok {
		return false, ErrUnsupportedDigest
	}
	h, ok := m.verifiers[alg]
	if !ok {
		return false, ErrUnsupportedDigest
	}
	return h.Verify(password, encoded)
}

// Primary returns the algorithm new digests are produced with.
func (m *Multi) Primary() Algorithm {
	return m.primary
}
