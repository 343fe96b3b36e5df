package account

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/session"
)

type sessionMutator struct {
	store Store
	now   func() time.Time
}

// SessionMutator exposes the session list of accounts in store to a
// session.Registry. Every change goes through Store.Update.
func SessionMutator(store Store, now func() time.Time) session.Mutator {
	if now == nil {
		now = time.Now
	}
	return &sessionMutator{store: store, now: now}
}

func (m *sessionMutator) UpdateSessions(ctx context.Context, accountID string, fn func([]session.Record) ([]session.Record, error)) error {
	_, err := m.store.Update(ctx, accountID, func(a *Account) error {
		next, err := fn(a.Sessions)
		if err != nil {
			return err
		}
		a.Sessions = next
		a.UpdatedAt = m.now()
		return nil
	})
	return err
}
