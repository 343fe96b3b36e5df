package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinBcryptCost is the lowest cost NewBcrypt accepts.
	MinBcryptCost = 10
	// DefaultBcryptCost is used when BcryptConfig.Cost is zero.
	DefaultBcryptCost = 12
	// MaxBcryptPasswordBytes is the input limit of the bcrypt algorithm.
	MaxBcryptPasswordBytes = 72
)

// ErrPasswordTooLong is returned by Bcrypt.Hash for inputs over 72 bytes.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// BcryptConfig holds the bcrypt work factor.
type BcryptConfig struct {
	Cost int
}

// Bcrypt is a [Hasher] backed by golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. A zero cost selects DefaultBcryptCost.
func NewBcrypt(cfg BcryptConfig) (*Bcrypt, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < MinBcryptCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", MinBcryptCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// newBcryptUnchecked skips the cost floor. Tests use it to stay fast.
func newBcryptUnchecked(cost int) *Bcrypt {
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxBcryptPasswordBytes {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (b *Bcrypt) Verify(password, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		// Nothing over 72 bytes was ever hashed, so it cannot match.
		return false, nil
	default:
		return false, err
	}
}

// Cost reports the configured work factor.
func (b *Bcrypt) Cost() int {
	return b.cost
}
