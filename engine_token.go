package goIdentity

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/internal"
)

var (
	errTokenConsumed = errors.New("single-use token already consumed")
	errTokenExpired  = errors.New("single-use token expired")
)

// lookupToken finds the account holding an unexpired token of kind and
// returns it with the token digest.
func (e *Engine) lookupToken(ctx context.Context, kind account.TokenKind, raw string) (*account.Account, string, error) {
	if raw == "" {
		return nil, "", ErrValidation.WithField("token").WithMessage("token required")
	}
	if !internal.ValidOpaqueToken(raw) {
		return nil, "", ErrTokenInvalid
	}
	digest := internal.HashToken(raw)

	acct, err := e.store.FindByToken(ctx, kind, digest)
	if errors.Is(err, account.ErrNotFound) {
		return nil, "", ErrTokenInvalid
	}
	if err != nil {
		return nil, "", internalError("find token", err)
	}
	if acct.Token(kind).Expired(e.now()) {
		e.clearToken(ctx, acct.ID, kind, digest)
		return acct, "", ErrTokenExpired
	}
	return acct, digest, nil
}

// redeemToken matches, checks expiry, clears the token and runs apply in
// one store update, so of two concurrent redemptions exactly one succeeds.
func (e *Engine) redeemToken(ctx context.Context, accountID string, kind account.TokenKind, digest string, apply func(a *account.Account, now time.Time)) (*account.Account, error) {
	updated, err := e.store.Update(ctx, accountID, func(a *account.Account) error {
		tok := a.Token(kind)
		if !tok.Matches(digest) {
			return errTokenConsumed
		}
		now := e.now()
		if tok.Expired(now) {
			return errTokenExpired
		}
		a.SetToken(kind, nil)
		apply(a, now)
		a.UpdatedAt = now
		return nil
	})
	switch {
	case errors.Is(err, errTokenConsumed), errors.Is(err, account.ErrNotFound):
		return nil, ErrTokenInvalid
	case errors.Is(err, errTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, storeError("consume token", err)
	}
	return updated, nil
}

// clearToken drops the token of kind if it still matches digest.
func (e *Engine) clearToken(ctx context.Context, accountID string, kind account.TokenKind, digest string) {
	_, err := e.store.Update(ctx, accountID, func(a *account.Account) error {
		if !a.Token(kind).Matches(digest) {
			return errTokenConsumed
		}
		a.SetToken(kind, nil)
		return nil
	})
	if err != nil && !errors.Is(err, errTokenConsumed) {
		e.log.Warn(ctx, "clear expired token failed", "account_id", accountID, "kind", string(kind), "error", err)
	}
}
