package goIdentity

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/lockout"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/session"
)

var errPasswordChanged = errors.New("password changed concurrently")

// ChangePassword replaces the password after checking the current one and
// ends every session of the account, the caller's included. A wrong current
// password counts toward lockout like a failed login, and a locked account
// cannot change its password.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	err := e.changePassword(ctx, accountID, current, next)
	if err != nil {
		e.metrics.Inc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", err, nil)
		return err
	}
	e.metrics.Inc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, accountID, "", nil, nil)
	return nil
}

func (e *Engine) changePassword(ctx context.Context, accountID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accountID == "" {
		return ErrValidation.WithField("account_id")
	}
	if current == "" {
		return ErrValidation.WithField("current_password").WithMessage("current password required")
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return storeError("find account", err)
	}

	if acct.Lockout().Locked(e.now()) {
		return ErrAccountLocked
	}
	ok, err := e.verifyPassword(ctx, current, acct.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return e.recordFailedLogin(ctx, accountID)
	}
	if err := e.checkPassword(next); err != nil {
		return err
	}
	if next == current {
		return ErrPasswordReuse
	}

	hash, err := e.hashPassword(ctx, next)
	if err != nil {
		return err
	}

	previous := acct.PasswordHash
	updated, err := e.store.Update(ctx, accountID, func(a *account.Account) error {
		if a.PasswordHash != previous {
			return errPasswordChanged
		}
		a.PasswordHash = hash
		a.PasswordReset = nil
		a.Sessions = []session.Record{}
		a.SetLockout(e.lockout.Succeed(a.Lockout()))
		a.UpdatedAt = e.now()
		return nil
	})
	if errors.Is(err, errPasswordChanged) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return storeError("update password", err)
	}

	e.log.Info(ctx, "password changed", "account_id", accountID)
	_ = e.deliver(ctx, accountID, passwordChangedMessage(updated))
	return nil
}

// ForgotPassword mails a one-hour reset token to an active account. The
// result is the same whether or not the email is registered: lookup and
// delivery failures are logged only. The per-email throttle runs before the
// lookup and returns ErrRateLimited for known and unknown emails alike.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	normalized, err := e.normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.throttle(ctx, "forgot_password", normalized, e.config.RateLimit.ForgotPassword); err != nil {
		return err
	}

	e.metrics.Inc(MetricPasswordResetRequest)
	userID, err := e.requestPasswordReset(ctx, normalized)
	e.emitAudit(ctx, auditEventPasswordResetRequest, err == nil, userID, "", err, nil)
	if err != nil {
		e.log.Error(ctx, "password reset request failed", "error", err)
	}
	return nil
}

func (e *Engine) requestPasswordReset(ctx context.Context, email string) (string, error) {
	acct, err := e.store.FindByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", internalError("find account", err)
	}
	if !acct.Active {
		return acct.ID, nil
	}

	rawToken, token, err := e.newSingleUseToken(e.config.PasswordReset.TokenTTL)
	if err != nil {
		return acct.ID, err
	}
	updated, err := e.store.Update(ctx, acct.ID, func(a *account.Account) error {
		a.PasswordReset = token
		a.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return acct.ID, storeError("store reset token", err)
	}

	msg := mail.Message{
		To:   updated.Email,
		Kind: mail.KindPasswordReset,
		Data: map[string]string{
			mail.DataName:      updated.Name,
			mail.DataToken:     rawToken,
			mail.DataExpiresAt: token.ExpiresAt.UTC().Format(time.RFC3339),
		},
	}
	if err := e.deliver(ctx, updated.ID, msg); err != nil {
		// Roll back unless a newer request already replaced it.
		e.clearToken(ctx, updated.ID, account.TokenPasswordReset, token.Hash)
		return updated.ID, err
	}
	return updated.ID, nil
}

// ResetPassword redeems a reset token, sets the new password, ends every
// session and lifts any lockout. A token works once.
func (e *Engine) ResetPassword(ctx context.Context, token, next string) error {
	acct, err := e.resetPassword(ctx, token, next)
	var userID string
	if acct != nil {
		userID = acct.ID
	}
	if err != nil {
		e.metrics.Inc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, "", err, nil)
		return err
	}

	e.metrics.Inc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, userID, "", nil, nil)
	e.log.Info(ctx, "password reset", "account_id", userID)
	_ = e.deliver(ctx, userID, passwordChangedMessage(acct))
	return nil
}

func (e *Engine) resetPassword(ctx context.Context, token, next string) (*account.Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.checkPassword(next); err != nil {
		return nil, err
	}

	acct, digest, err := e.lookupToken(ctx, account.TokenPasswordReset, token)
	if err != nil {
		return acct, err
	}
	hash, err := e.hashPassword(ctx, next)
	if err != nil {
		return acct, err
	}

	updated, err := e.redeemToken(ctx, acct.ID, account.TokenPasswordReset, digest, func(a *account.Account, _ time.Time) {
		a.PasswordHash = hash
		a.Sessions = []session.Record{}
		a.SetLockout(lockout.State{})
	})
	if err != nil {
		return acct, err
	}
	return updated, nil
}

func passwordChangedMessage(acct *account.Account) mail.Message {
	return mail.Message{
		To:   acct.Email,
		Kind: mail.KindPasswordChanged,
		Data: map[string]string{mail.DataName: acct.Name},
	}
}
