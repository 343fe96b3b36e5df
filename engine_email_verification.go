package goIdentity

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/account"
)

var errAlreadyVerified = errors.New("email already verified")

// VerifyEmail redeems a verification token and marks the email verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*account.Public, error) {
	pub, userID, err := e.verifyEmail(ctx, token)
	if err != nil {
		e.metrics.Inc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, userID, "", err, nil)
		return nil, err
	}
	e.metrics.Inc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, userID, "", nil, nil)
	return pub, nil
}

func (e *Engine) verifyEmail(ctx context.Context, token string) (*account.Public, string, error) {
	if err := e.ready(); err != nil {
		return nil, "", err
	}

	acct, digest, err := e.lookupToken(ctx, account.TokenEmailVerification, token)
	if err != nil {
		var userID string
		if acct != nil {
			userID = acct.ID
		}
		return nil, userID, err
	}

	updated, err := e.redeemToken(ctx, acct.ID, account.TokenEmailVerification, digest, func(a *account.Account, _ time.Time) {
		a.EmailVerified = true
	})
	if err != nil {
		return nil, acct.ID, err
	}
	pub := updated.Public(e.now())
	return &pub, acct.ID, nil
}

// ResendVerification replaces the outstanding verification token with a
// fresh one and mails it. Delivery failures are logged, not returned.
func (e *Engine) ResendVerification(ctx context.Context, accountID string) error {
	err := e.resendVerification(ctx, accountID)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, err == nil, accountID, "", err, nil)
	return err
}

func (e *Engine) resendVerification(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accountID == "" {
		return ErrValidation.WithField("account_id")
	}
	if err := e.throttle(ctx, "resend_verification", accountID, e.config.RateLimit.ResendVerification); err != nil {
		return err
	}

	rawToken, token, err := e.newSingleUseToken(e.config.EmailVerification.TokenTTL)
	if err != nil {
		return err
	}
	updated, err := e.store.Update(ctx, accountID, func(a *account.Account) error {
		if a.EmailVerified {
			return errAlreadyVerified
		}
		a.Verification = token
		a.UpdatedAt = e.now()
		return nil
	})
	if errors.Is(err, errAlreadyVerified) {
		return ErrAlreadyVerified
	}
	if err != nil {
		return storeError("store verification token", err)
	}

	if err := e.deliver(ctx, updated.ID, verificationMessage(updated, rawToken, token.ExpiresAt)); err == nil {
		e.metrics.Inc(MetricEmailVerificationRequest)
	}
	return nil
}
