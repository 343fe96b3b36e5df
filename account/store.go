package account

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by Create, Save and Update when the
	// normalized email already belongs to another account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrContention is returned when an optimistic update keeps losing races.
	ErrContention = errors.New("account update contention")
)

// Store persists accounts.
//
// Emails are stored normalized and FindByEmail normalizes its argument.
// Update runs mutate against a private copy and persists the result
// atomically; if mutate returns an error nothing is written and the error
// is returned unchanged. Implementations that retry on conflict may call
// mutate more than once.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByToken(ctx context.Context, kind TokenKind, hash string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	Save(ctx context.Context, a *Account) error
	Update(ctx context.Context, id string, mutate func(*Account) error) (*Account, error)
}
