// Package memory is an in-process account.Store.
package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/goIdentity/account"
)

// Store keeps accounts in maps guarded by a single mutex. Values are deep
// copied on the way in and out.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*account.Account
	byEmail map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*account.Account),
		byEmail: make(map[string]string),
	}
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[account.NormalizeEmail(email)]
	if !ok {
		return nil, account.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// FindByToken scans every account. Fine for the sizes this store is meant for.
func (s *Store) FindByToken(ctx context.Context, kind account.TokenKind, hash string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hash == "" || !kind.Valid() {
		return nil, account.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.byID {
		if a.Token(kind).Matches(hash) {
			return a.Clone(), nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *Store) Create(ctx context.Context, a *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := a.Clone()
	next.Email = account.NormalizeEmail(next.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[next.Email]; ok {
		return account.ErrDuplicateEmail
	}
	if _, ok := s.byID[next.ID]; ok {
		return account.ErrDuplicateEmail
	}
	s.byID[next.ID] = next
	s.byEmail[next.Email] = next.ID
	return nil
}

func (s *Store) Save(ctx context.Context, a *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := a.Clone()
	next.Email = account.NormalizeEmail(next.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(next)
}

func (s *Store) Update(ctx context.Context, id string, mutate func(*account.Account) error) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.Email = account.NormalizeEmail(next.Email)
	if err := s.putLocked(next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (s *Store) putLocked(next *account.Account) error {
	if owner, ok := s.byEmail[next.Email]; ok && owner != next.ID {
		return account.ErrDuplicateEmail
	}
	if prev, ok := s.byID[next.ID]; ok && prev.Email != next.Email {
		delete(s.byEmail, prev.Email)
	}
	s.byID[next.ID] = next
	s.byEmail[next.Email] = next.ID
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
