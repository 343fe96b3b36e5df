package goIdentity

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/lockout"
)

// errLockedDuringLogin aborts a store update when a concurrent failure
// locked the account between the lock check and the write.
var errLockedDuringLogin = errors.New("account locked during login")

// Login verifies email and password and starts a session.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
// A locked account returns ErrAccountLocked before the password is
// checked, so even the correct password is refused until the lock ends.
func (e *Engine) Login(ctx context.Context, email, plain string) (*Grant, error) {
	start := time.Now()
	grant, userID, err := e.login(ctx, email, plain)
	e.metrics.Observe(MetricLoginLatency, time.Since(start))

	if err != nil {
		switch {
		case errors.Is(err, ErrAccountLocked):
			e.metrics.Inc(MetricLoginLocked)
		case errors.Is(err, ErrRateLimited):
		default:
			e.metrics.Inc(MetricLoginFailure)
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, nil)
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, userID, grant.SessionID, nil, nil)
	return grant, nil
}

func (e *Engine) login(ctx context.Context, email, plain string) (*Grant, string, error) {
	if err := e.ready(); err != nil {
		return nil, "", err
	}

	email = account.NormalizeEmail(email)
	if email == "" {
		return nil, "", ErrValidation.WithField("email").WithMessage("email required")
	}
	if plain == "" {
		return nil, "", ErrValidation.WithField("password").WithMessage("password required")
	}
	if err := e.throttle(ctx, "login", clientIPFromContext(ctx), e.config.RateLimit.Login); err != nil {
		return nil, "", err
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		if _, err := e.verifyPassword(ctx, plain, e.dummyHash); err != nil {
			return nil, "", err
		}
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", internalError("find account", err)
	}

	if acct.Lockout().Locked(e.now()) {
		return nil, acct.ID, ErrAccountLocked
	}

	ok, err := e.verifyPassword(ctx, plain, acct.PasswordHash)
	if err != nil {
		return nil, acct.ID, err
	}
	if !ok {
		return nil, acct.ID, e.recordFailedLogin(ctx, acct.ID)
	}

	if !acct.Active {
		return nil, acct.ID, ErrAccountDeactivated
	}
	if e.config.EmailVerification.RequireForLogin && !acct.EmailVerified {
		return nil, acct.ID, ErrEmailUnverified
	}

	updated, err := e.store.Update(ctx, acct.ID, func(a *account.Account) error {
		now := e.now()
		if a.Lockout().Locked(now) {
			return errLockedDuringLogin
		}
		a.SetLockout(e.lockout.Succeed(a.Lockout()))
		a.LastLoginAt = now
		a.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errLockedDuringLogin) {
		return nil, acct.ID, ErrAccountLocked
	}
	if err != nil {
		return nil, acct.ID, storeError("record login", err)
	}

	grant, err := e.issueGrant(ctx, updated)
	if err != nil {
		return nil, acct.ID, err
	}
	return grant, acct.ID, nil
}

// recordFailedLogin applies one failure atomically. It returns
// ErrAccountLocked when a concurrent attempt locked the account first and
// ErrInvalidCredentials otherwise, including for the failure that locks.
func (e *Engine) recordFailedLogin(ctx context.Context, accountID string) error {
	var outcome lockout.Outcome
	var state lockout.State
	_, err := e.store.Update(ctx, accountID, func(a *account.Account) error {
		now := e.now()
		state, outcome = e.lockout.Fail(a.Lockout(), now)
		if outcome == lockout.OutcomeRejected {
			return errLockedDuringLogin
		}
		a.SetLockout(state)
		a.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errLockedDuringLogin) {
		return ErrAccountLocked
	}
	if err != nil {
		return storeError("record failed login", err)
	}

	if outcome == lockout.OutcomeLocked {
		e.metrics.Inc(MetricAccountLocked)
		e.log.Warn(ctx, "account locked", "account_id", accountID, "failures", state.Failures, "locked_until", state.LockedUntil)
		e.emitAudit(ctx, auditEventAccountLocked, true, accountID, "", nil, func() map[string]string {
			return map[string]string{"locked_until": state.LockedUntil.Format(time.RFC3339)}
		})
	}
	return ErrInvalidCredentials
}
