package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
)

var (
	// ErrNotFound reports that the presented token or id has no record.
	ErrNotFound = errors.New("session not found")
	// errUnchanged aborts an update that would write nothing.
	errUnchanged = errors.New("session list unchanged")
)

const (
	DefaultMaxPerAccount      = 5
	DefaultMaxUserAgentLength = 256
)

// Mutator applies fn to one account's session list atomically. If fn
// returns an error nothing is written and the error is returned as is.
// Implementations may call fn more than once.
type Mutator interface {
	UpdateSessions(ctx context.Context, accountID string, fn func([]Record) ([]Record, error)) error
}

// Config bounds the registry.
type Config struct {
	MaxPerAccount      int
	TTL                time.Duration
	MaxUserAgentLength int
	Now                func() time.Time
}

// Registry manages session records through a Mutator.
type Registry struct {
	store  Mutator
	config Config
}

// NewRegistry applies defaults for zero fields and returns a Registry.
func NewRegistry(store Mutator, cfg Config) (*Registry, error) {
	if store == nil {
		return nil, errors.New("session mutator required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be > 0")
	}
	if cfg.MaxPerAccount <= 0 {
		cfg.MaxPerAccount = DefaultMaxPerAccount
	}
	if cfg.MaxUserAgentLength <= 0 {
		cfg.MaxUserAgentLength = DefaultMaxUserAgentLength
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{store: store, config: cfg}, nil
}

func (r *Registry) record(issue Issue, now time.Time) Record {
	return Record{
		ID:        issue.ID,
		TokenHash: internal.HashToken(issue.RawToken),
		UserAgent: TruncateUserAgent(issue.UserAgent, r.config.MaxUserAgentLength),
		IP:        issue.IP,
		CreatedAt: now,
		ExpiresAt: now.Add(r.config.TTL),
	}
}

// Add appends a record for issue, evicting the oldest when the account
// already holds the maximum.
func (r *Registry) Add(ctx context.Context, accountID string, issue Issue) (Record, error) {
	if issue.RawToken == "" || issue.ID == "" {
		return Record{}, errors.New("session id and token required")
	}
	now := r.config.Now()
	rec := r.record(issue, now)

	err := r.store.UpdateSessions(ctx, accountID, func(list []Record) ([]Record, error) {
		next, _ := Append(list, rec, r.config.MaxPerAccount, now)
		return next, nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Remove deletes the record matching rawToken exactly. It reports whether
// a record was removed; a missing record is not an error.
func (r *Registry) Remove(ctx context.Context, accountID, rawToken string) (bool, error) {
	hash := internal.HashToken(rawToken)
	return r.removeWhere(ctx, accountID, func(list []Record) int {
		return FindByHash(list, hash)
	})
}

// RemoveByID deletes the record with the given session id.
func (r *Registry) RemoveByID(ctx context.Context, accountID, sessionID string) (bool, error) {
	return r.removeWhere(ctx, accountID, func(list []Record) int {
		return FindByID(list, sessionID)
	})
}

func (r *Registry) removeWhere(ctx context.Context, accountID string, find func([]Record) int) (bool, error) {
	err := r.store.UpdateSessions(ctx, accountID, func(list []Record) ([]Record, error) {
		i := find(list)
		if i < 0 {
			return nil, errUnchanged
		}
		return RemoveAt(list, i), nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveAll clears every session of the account.
func (r *Registry) RemoveAll(ctx context.Context, accountID string) error {
	err := r.store.UpdateSessions(ctx, accountID, func(list []Record) ([]Record, error) {
		if len(list) == 0 {
			return nil, errUnchanged
		}
		return []Record{}, nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// Rotate replaces the record of oldRawToken with a record for next in one
// update. It returns ErrNotFound, writing nothing, when oldRawToken has no
// live record; a second use of the same token therefore always fails.
func (r *Registry) Rotate(ctx context.Context, accountID, oldRawToken string, next Issue) (Record, error) {
	if next.RawToken == "" || next.ID == "" {
		return Record{}, errors.New("session id and token required")
	}
	oldHash := internal.HashToken(oldRawToken)
	now := r.config.Now()
	rec := r.record(next, now)

	err := r.store.UpdateSessions(ctx, accountID, func(list []Record) ([]Record, error) {
		i := FindByHash(list, oldHash)
		if i < 0 || list[i].Expired(now) {
			return nil, ErrNotFound
		}
		out, _ := Append(RemoveAt(list, i), rec, r.config.MaxPerAccount, now)
		return out, nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// MaxPerAccount returns the configured cap.
func (r *Registry) MaxPerAccount() int {
	return r.config.MaxPerAccount
}
