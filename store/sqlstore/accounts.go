package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/session"
)

const accountColumns = `id, email, name, password_hash, role, active, email_verified,
	failed_logins, locked_until, last_login_at,
	verification_hash, verification_expires_at, reset_hash, reset_expires_at,
	version, created_at, updated_at`

var errStaleVersion = errors.New("stale account version")

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func tokenColumns(tok *account.SingleUseToken) (string, int64) {
	if tok == nil {
		return "", 0
	}
	return tok.Hash, toMillis(tok.ExpiresAt)
}

func tokenFromColumns(hash string, expires int64) *account.SingleUseToken {
	if hash == "" {
		return nil
	}
	return &account.SingleUseToken{Hash: hash, ExpiresAt: fromMillis(expires)}
}

func scanAccount(row rowScanner) (*account.Account, int64, error) {
	var (
		a                             account.Account
		role, verifyHash, resetHash   string
		lockedUntil, lastLogin        int64
		verifyExpires, resetExpires   int64
		version, createdAt, updatedAt int64
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &role, &a.Active, &a.EmailVerified,
		&a.FailedLogins, &lockedUntil, &lastLogin,
		&verifyHash, &verifyExpires, &resetHash, &resetExpires,
		&version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	a.Role = account.Role(role)
	a.LockedUntil = fromMillis(lockedUntil)
	a.LastLoginAt = fromMillis(lastLogin)
	a.Verification = tokenFromColumns(verifyHash, verifyExpires)
	a.PasswordReset = tokenFromColumns(resetHash, resetExpires)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, version, nil
}

// accountArgs returns the column values in accountColumns order, minus id,
// version and created_at which callers place themselves.
func accountArgs(a *account.Account) []any {
	verifyHash, verifyExpires := tokenColumns(a.Verification)
	resetHash, resetExpires := tokenColumns(a.PasswordReset)
	return []any{
		a.Email, a.Name, a.PasswordHash, string(a.Role), a.Active, a.EmailVerified,
		a.FailedLogins, toMillis(a.LockedUntil), toMillis(a.LastLoginAt),
		verifyHash, verifyExpires, resetHash, resetExpires,
		toMillis(a.UpdatedAt),
	}
}

func (s *Store) findOne(ctx context.Context, db DBTX, where string, args ...any) (*account.Account, int64, error) {
	query := s.rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE ` + where)
	a, version, err := scanAccount(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, account.ErrNotFound
		}
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	sessions, err := s.loadSessions(ctx, db, a.ID)
	if err != nil {
		return nil, 0, err
	}
	a.Sessions = sessions
	return a, version, nil
}

func (s *Store) loadSessions(ctx context.Context, db DBTX, accountID string) ([]session.Record, error) {
	rows, err := db.QueryContext(ctx, s.rebind(
		`SELECT id, token_hash, user_agent, ip, created_at, expires_at
		 FROM account_sessions WHERE account_id = ? ORDER BY seq`), accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []session.Record{}
	for rows.Next() {
		var (
			rec                  session.Record
			createdAt, expiresAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.TokenHash, &rec.UserAgent, &rec.IP, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		rec.ExpiresAt = fromMillis(expiresAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (s *Store) replaceSessions(ctx context.Context, db DBTX, accountID string, list []session.Record) error {
	if _, err := db.ExecContext(ctx, s.rebind(`DELETE FROM account_sessions WHERE account_id = ?`), accountID); err != nil {
		return err
	}
	insert := s.rebind(`INSERT INTO account_sessions
		(account_id, seq, id, token_hash, user_agent, ip, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, rec := range list {
		if _, err := db.ExecContext(ctx, insert,
			accountID, i, rec.ID, rec.TokenHash, rec.UserAgent, rec.IP,
			toMillis(rec.CreatedAt), toMillis(rec.ExpiresAt),
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	a, _, err := s.findOne(ctx, s.db, `id = ?`, id)
	return a, err
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	a, _, err := s.findOne(ctx, s.db, `email = ?`, account.NormalizeEmail(email))
	return a, err
}

func (s *Store) FindByToken(ctx context.Context, kind account.TokenKind, hash string) (*account.Account, error) {
	if hash == "" {
		return nil, account.ErrNotFound
	}
	var where string
	switch kind {
	case account.TokenEmailVerification:
		where = `verification_hash = ?`
	case account.TokenPasswordReset:
		where = `reset_hash = ?`
	default:
		return nil, account.ErrNotFound
	}
	a, _, err := s.findOne(ctx, s.db, where, hash)
	return a, err
}

func (s *Store) insert(ctx context.Context, db DBTX, a *account.Account) error {
	args := append([]any{a.ID}, accountArgs(a)...)
	args = append(args, toMillis(a.CreatedAt))
	_, err := db.ExecContext(ctx, s.rebind(`INSERT INTO accounts
		(id, email, name, password_hash, role, active, email_verified,
		 failed_logins, locked_until, last_login_at,
		 verification_hash, verification_expires_at, reset_hash, reset_expires_at,
		 updated_at, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}
	return s.replaceSessions(ctx, db, a.ID, a.Sessions)
}

// overwrite writes a at version+1 if the row is still at version.
func (s *Store) overwrite(ctx context.Context, db DBTX, a *account.Account, version int64) error {
	args := accountArgs(a)
	args = append(args, a.ID, version)
	res, err := db.ExecContext(ctx, s.rebind(`UPDATE accounts SET
		email = ?, name = ?, password_hash = ?, role = ?, active = ?, email_verified = ?,
		failed_logins = ?, locked_until = ?, last_login_at = ?,
		verification_hash = ?, verification_expires_at = ?, reset_hash = ?, reset_expires_at = ?,
		updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return errStaleVersion
	}
	return nil
}

func (s *Store) Create(ctx context.Context, a *account.Account) error {
	next := a.Clone()
	next.Email = account.NormalizeEmail(next.Email)
	return s.withTx(ctx, func(tx DBTX) error {
		return s.insert(ctx, tx, next)
	})
}

// Save inserts a or overwrites the stored row regardless of its version.
func (s *Store) Save(ctx context.Context, a *account.Account) error {
	next := a.Clone()
	next.Email = account.NormalizeEmail(next.Email)
	return s.withTx(ctx, func(tx DBTX) error {
		cur, version, err := s.findOne(ctx, tx, `id = ?`, next.ID)
		if errors.Is(err, account.ErrNotFound) {
			return s.insert(ctx, tx, next)
		}
		if err != nil {
			return err
		}
		if err := s.overwrite(ctx, tx, next, version); err != nil {
			return err
		}
		if slices.Equal(cur.Sessions, next.Sessions) {
			return nil
		}
		return s.replaceSessions(ctx, tx, next.ID, next.Sessions)
	})
}

func (s *Store) Update(ctx context.Context, id string, mutate func(*account.Account) error) (*account.Account, error) {
	for i := 0; i < s.maxRetries; i++ {
		var (
			written   *account.Account
			mutateErr error
		)
		err := s.withTx(ctx, func(tx DBTX) error {
			cur, version, err := s.findOne(ctx, tx, `id = ?`, id)
			if err != nil {
				return err
			}
			next := cur.Clone()
			if err := mutate(next); err != nil {
				mutateErr = err
				return err
			}
			next.ID = id
			next.Email = account.NormalizeEmail(next.Email)

			if err := s.overwrite(ctx, tx, next, version); err != nil {
				return err
			}
			if !slices.Equal(cur.Sessions, next.Sessions) {
				if err := s.replaceSessions(ctx, tx, id, next.Sessions); err != nil {
					return fmt.Errorf("db error: %w", err)
				}
			}
			written = next
			return nil
		})
		if mutateErr != nil {
			return nil, mutateErr
		}
		if errors.Is(err, errStaleVersion) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return written.Clone(), nil
	}
	return nil, account.ErrContention
}
