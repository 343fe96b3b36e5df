package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/store/storetest"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "identity.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	s, err := Open(context.Background(), DialectSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStoreSuiteSQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) account.Store {
		return newSQLiteStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestVersionAdvancesOnUpdate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, storetest.NewAccount("acct-1", "v@example.com")))

	for i := 0; i < 3; i++ {
		_, err := s.Update(ctx, "acct-1", func(a *account.Account) error {
			a.FailedLogins++
			return nil
		})
		require.NoError(t, err)
	}

	var version int64
	require.NoError(t, s.DB().QueryRow(`SELECT version FROM accounts WHERE id = ?`, "acct-1").Scan(&version))
	assert.Equal(t, int64(3), version)
}

func TestZeroTimesStoredAsZero(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, storetest.NewAccount("acct-1", "zero@example.com")))

	var lockedUntil, lastLogin int64
	require.NoError(t, s.DB().QueryRow(
		`SELECT locked_until, last_login_at FROM accounts WHERE id = ?`, "acct-1",
	).Scan(&lockedUntil, &lastLogin))
	assert.Zero(t, lockedUntil)
	assert.Zero(t, lastLogin)

	got, err := s.FindByID(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, got.LockedUntil.IsZero())
	assert.True(t, got.LastLoginAt.IsZero())
	assert.Nil(t, got.Verification)
	assert.Nil(t, got.PasswordReset)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	my := &Store{dialect: DialectMySQL}
	assert.Equal(t, "a = ? AND b = ?", my.rebind("a = ? AND b = ?"))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isUniqueViolation(&mysql.MySQLError{Number: 1452}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestUnsupportedDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "")
	require.Error(t, err)

	_, err = New(nil, DialectSQLite)
	require.Error(t, err)
}
