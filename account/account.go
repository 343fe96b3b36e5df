package account

import (
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/lockout"
	"github.com/MrEthical07/goIdentity/session"
)

// Role is the account's authorization tier.
type Role string

const (
	RoleStandard      Role = "standard"
	RoleModerator     Role = "moderator"
	RoleAdministrator Role = "administrator"
)

// Roles lists every valid role from least to most privileged.
var Roles = []Role{RoleStandard, RoleModerator, RoleAdministrator}

func (r Role) Valid() bool {
	switch r {
	case RoleStandard, RoleModerator, RoleAdministrator:
		return true
	}
	return false
}

// TokenKind selects one of the single-use token slots.
type TokenKind string

const (
	TokenEmailVerification TokenKind = "email_verification"
	TokenPasswordReset     TokenKind = "password_reset"
)

func (k TokenKind) Valid() bool {
	return k == TokenEmailVerification || k == TokenPasswordReset
}

// SingleUseToken is the stored half of a verification or reset token.
type SingleUseToken struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token can no longer be redeemed at now.
func (t *SingleUseToken) Expired(now time.Time) bool {
	return t == nil || !now.Before(t.ExpiresAt)
}

// Matches compares hash against the stored digest in constant time.
func (t *SingleUseToken) Matches(hash string) bool {
	return t != nil && internal.DigestsEqual(t.Hash, hash)
}

// Account is the credentials view of an identity.
type Account struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	Name          string           `json:"name"`
	PasswordHash  string           `json:"password_hash"`
	Role          Role             `json:"role"`
	Active        bool             `json:"active"`
	EmailVerified bool             `json:"email_verified"`
	FailedLogins  int              `json:"failed_logins"`
	LockedUntil   time.Time        `json:"locked_until"`
	LastLoginAt   time.Time        `json:"last_login_at"`
	Verification  *SingleUseToken  `json:"verification,omitempty"`
	PasswordReset *SingleUseToken  `json:"password_reset,omitempty"`
	Sessions      []session.Record `json:"sessions"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Token returns the token stored in the slot of kind, or nil.
func (a *Account) Token(kind TokenKind) *SingleUseToken {
	switch kind {
	case TokenEmailVerification:
		return a.Verification
	case TokenPasswordReset:
		return a.PasswordReset
	}
	return nil
}

// SetToken overwrites the slot of kind. A nil token clears it.
func (a *Account) SetToken(kind TokenKind, tok *SingleUseToken) {
	switch kind {
	case TokenEmailVerification:
		a.Verification = tok
	case TokenPasswordReset:
		a.PasswordReset = tok
	}
}

// Lockout returns the failed-login state.
func (a *Account) Lockout() lockout.State {
	return lockout.State{Failures: a.FailedLogins, LockedUntil: a.LockedUntil}
}

// SetLockout stores s.
func (a *Account) SetLockout(s lockout.State) {
	a.FailedLogins = s.Failures
	a.LockedUntil = s.LockedUntil
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Verification != nil {
		v := *a.Verification
		out.Verification = &v
	}
	if a.PasswordReset != nil {
		r := *a.PasswordReset
		out.PasswordReset = &r
	}
	if a.Sessions != nil {
		out.Sessions = append([]session.Record(nil), a.Sessions...)
	}
	return &out
}

// Public is the view of an account safe to return to callers.
type Public struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	Active        bool      `json:"active"`
	EmailVerified bool      `json:"email_verified"`
	LastLoginAt   time.Time `json:"last_login_at,omitzero"`
	CreatedAt     time.Time `json:"created_at"`
	SessionCount  int       `json:"session_count"`
}

// Public builds the public view. now decides which sessions still count.
func (a *Account) Public(now time.Time) Public {
	return Public{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		Role:          a.Role,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
		SessionCount:  len(session.Active(a.Sessions, now)),
	}
}
