// Package storetest is the behavioural suite shared by every account.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/session"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) account.Store

// Base is a millisecond-aligned instant used for every timestamp the suite
// writes, so stores that persist millis compare equal.
var Base = time.UnixMilli(1_700_000_000_000).UTC()

// NewAccount returns a valid account with the given id and email.
func NewAccount(id, email string) *account.Account {
	return &account.Account{
		ID:           id,
		Email:        email,
		Name:         "Test " + id,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$a2V5",
		Role:         account.RoleStandard,
		Active:       true,
		Sessions:     []session.Record{},
		CreatedAt:    Base,
		UpdatedAt:    Base,
	}
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(*testing.T, account.Store)
	}{
		{"CreateAndFind", testCreateAndFind},
		{"DuplicateEmail", testDuplicateEmail},
		{"NotFound", testNotFound},
		{"SaveUpserts", testSaveUpserts},
		{"UpdateAbortWritesNothing", testUpdateAbort},
		{"UpdateMaintainsEmailIndex", testUpdateEmailIndex},
		{"FindByToken", testFindByToken},
		{"SessionsRoundTrip", testSessionsRoundTrip},
		{"ConcurrentIncrementsNeverUndercount", testConcurrentIncrements},
		{"ConcurrentConsumeSucceedsOnce", testConcurrentConsume},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func mustCreate(t *testing.T, s account.Store, a *account.Account) {
	t.Helper()
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("create %s: %v", a.ID, err)
	}
}

func testCreateAndFind(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := NewAccount("acct-1", "Alice@Example.com")
	a.LastLoginAt = Base.Add(time.Minute)
	a.LockedUntil = Base.Add(time.Hour)
	a.FailedLogins = 2
	mustCreate(t, s, a)

	got, err := s.FindByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", got.Email)
	}
	if got.Name != a.Name || got.PasswordHash != a.PasswordHash || got.Role != a.Role || !got.Active || got.EmailVerified {
		t.Fatalf("unexpected account fields %+v", got)
	}
	if got.FailedLogins != 2 || !got.LockedUntil.Equal(a.LockedUntil) || !got.LastLoginAt.Equal(a.LastLoginAt) {
		t.Fatalf("unexpected lock or login fields %+v", got)
	}
	if !got.CreatedAt.Equal(Base) {
		t.Fatalf("unexpected created_at %v", got.CreatedAt)
	}

	byEmail, err := s.FindByEmail(ctx, "  ALICE@example.COM")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.ID != "acct-1" {
		t.Fatalf("unexpected id %q", byEmail.ID)
	}

	got.Name = "mutated"
	again, _ := s.FindByID(ctx, "acct-1")
	if again.Name == "mutated" {
		t.Fatal("store returned shared memory")
	}
}

func testDuplicateEmail(t *testing.T, s account.Store) {
	mustCreate(t, s, NewAccount("acct-1", "dup@example.com"))
	err := s.Create(context.Background(), NewAccount("acct-2", "DUP@example.com"))
	if !errors.Is(err, account.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func testNotFound(t *testing.T, s account.Store) {
	ctx := context.Background()
	if _, err := s.FindByID(ctx, "missing"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by id, got %v", err)
	}
	if _, err := s.FindByEmail(ctx, "missing@example.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by email, got %v", err)
	}
	if _, err := s.FindByToken(ctx, account.TokenPasswordReset, internal.HashToken("x")); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by token, got %v", err)
	}
	_, err := s.Update(ctx, "missing", func(*account.Account) error { return nil })
	if !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func testSaveUpserts(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := NewAccount("acct-1", "save@example.com")
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save new: %v", err)
	}
	a.Name = "Renamed"
	a.EmailVerified = true
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save existing: %v", err)
	}
	got, err := s.FindByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Name != "Renamed" || !got.EmailVerified {
		t.Fatalf("save did not overwrite: %+v", got)
	}
}

func testUpdateAbort(t *testing.T, s account.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewAccount("acct-1", "abort@example.com"))

	abort := errors.New("precondition failed")
	_, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
		a.Name = "should not persist"
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected mutate error returned unchanged, got %v", err)
	}
	got, _ := s.FindByID(ctx, "acct-1")
	if got.Name == "should not persist" {
		t.Fatal("aborted update was written")
	}

	updated, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
		a.Name = "persisted"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "persisted" {
		t.Fatalf("update returned stale document %+v", updated)
	}
}

func testUpdateEmailIndex(t *testing.T, s account.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewAccount("acct-1", "old@example.com"))
	mustCreate(t, s, NewAccount("acct-2", "taken@example.com"))

	if _, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
		a.Email = "New@Example.com"
		return nil
	}); err != nil {
		t.Fatalf("email change: %v", err)
	}
	if _, err := s.FindByEmail(ctx, "old@example.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("old email still indexed: %v", err)
	}
	got, err := s.FindByEmail(ctx, "new@example.com")
	if err != nil || got.ID != "acct-1" {
		t.Fatalf("new email not indexed: %v %+v", err, got)
	}

	_, err = s.Update(ctx, "acct-1", func(a *account.Account) error {
		a.Email = "taken@example.com"
		return nil
	})
	if !errors.Is(err, account.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	owner, err := s.FindByEmail(ctx, "taken@example.com")
	if err != nil || owner.ID != "acct-2" {
		t.Fatalf("conflicting update changed ownership: %v %+v", err, owner)
	}
}

func testFindByToken(t *testing.T, s account.Store) {
	ctx := context.Background()
	verifyHash := internal.HashToken("verify-raw")
	resetHash := internal.HashToken("reset-raw")

	a := NewAccount("acct-1", "tok@example.com")
	a.Verification = &account.SingleUseToken{Hash: verifyHash, ExpiresAt: Base.Add(24 * time.Hour)}
	a.PasswordReset = &account.SingleUseToken{Hash: resetHash, ExpiresAt: Base.Add(time.Hour)}
	mustCreate(t, s, a)
	mustCreate(t, s, NewAccount("acct-2", "other@example.com"))

	got, err := s.FindByToken(ctx, account.TokenPasswordReset, resetHash)
	if err != nil || got.ID != "acct-1" {
		t.Fatalf("reset lookup: %v %+v", err, got)
	}
	if got.PasswordReset == nil || !got.PasswordReset.ExpiresAt.Equal(Base.Add(time.Hour)) {
		t.Fatalf("reset token not round-tripped: %+v", got.PasswordReset)
	}
	if _, err := s.FindByToken(ctx, account.TokenEmailVerification, resetHash); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("token kinds must not cross: %v", err)
	}
	if _, err := s.FindByToken(ctx, account.TokenEmailVerification, verifyHash); err != nil {
		t.Fatalf("verification lookup: %v", err)
	}

	if _, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
		a.SetToken(account.TokenPasswordReset, nil)
		return nil
	}); err != nil {
		t.Fatalf("clear token: %v", err)
	}
	if _, err := s.FindByToken(ctx, account.TokenPasswordReset, resetHash); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("cleared token still found: %v", err)
	}
}

func testSessionsRoundTrip(t *testing.T, s account.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewAccount("acct-1", "sess@example.com"))

	records := []session.Record{
		{ID: "s1", TokenHash: internal.HashToken("r1"), UserAgent: "ua-1", IP: "10.0.0.1", CreatedAt: Base, ExpiresAt: Base.Add(time.Hour)},
		{ID: "s2", TokenHash: internal.HashToken("r2"), UserAgent: "ua-2", IP: "10.0.0.2", CreatedAt: Base.Add(time.Second), ExpiresAt: Base.Add(2 * time.Hour)},
	}
	if _, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
		a.Sessions = append([]session.Record(nil), records...)
		return nil
	}); err != nil {
		t.Fatalf("store sessions: %v", err)
	}

	got, err := s.FindByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.Sessions) != len(records) {
		t.Fatalf("expected %d sessions, got %d", len(records), len(got.Sessions))
	}
	for i, want := range records {
		have := got.Sessions[i]
		if have.ID != want.ID || have.TokenHash != want.TokenHash || have.UserAgent != want.UserAgent || have.IP != want.IP {
			t.Fatalf("session %d mismatch: %+v", i, have)
		}
		if !have.CreatedAt.Equal(want.CreatedAt) || !have.ExpiresAt.Equal(want.ExpiresAt) {
			t.Fatalf("session %d times mismatch: %+v", i, have)
		}
	}

	if _, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
		a.Sessions = []session.Record{}
		return nil
	}); err != nil {
		t.Fatalf("clear sessions: %v", err)
	}
	got, _ = s.FindByID(ctx, "acct-1")
	if len(got.Sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(got.Sessions))
	}
}

func testConcurrentIncrements(t *testing.T, s account.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewAccount("acct-1", "race@example.com"))

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
				a.FailedLogins++
				return nil
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, account.ErrContention):
			default:
				t.Errorf("unexpected update error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.FindByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if successes.Load() == 0 {
		t.Fatal("expected at least one update to commit")
	}
	if int64(got.FailedLogins) != successes.Load() {
		t.Fatalf("lost updates: counter %d, committed %d", got.FailedLogins, successes.Load())
	}
}

func testConcurrentConsume(t *testing.T, s account.Store) {
	ctx := context.Background()
	hash := internal.HashToken("reset-once")
	a := NewAccount("acct-1", "once@example.com")
	a.PasswordReset = &account.SingleUseToken{Hash: hash, ExpiresAt: Base.Add(time.Hour)}
	mustCreate(t, s, a)

	errMismatch := errors.New("token mismatch")
	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
				if !a.PasswordReset.Matches(hash) {
					return errMismatch
				}
				a.PasswordReset = nil
				a.PasswordHash = fmt.Sprintf("hash-%d", i)
				return nil
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, errMismatch), errors.Is(err, account.ErrContention):
			default:
				t.Errorf("unexpected consume error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Fatalf("expected exactly one consumption, got %d", successes.Load())
	}
}
