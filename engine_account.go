package goIdentity

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/mail"
)

// Register creates a standard, unverified account, mails a verification
// token and starts the first session.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Grant, error) {
	grant, err := e.register(ctx, req)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			e.metrics.Inc(MetricRegisterDuplicate)
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, err
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, grant.Account.ID, grant.SessionID, nil, nil)
	return grant, nil
}

func (e *Engine) register(ctx context.Context, req RegisterRequest) (*Grant, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := e.normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	name, err := e.normalizeName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := e.checkPassword(req.Password); err != nil {
		return nil, err
	}
	if err := e.throttle(ctx, "register", clientIPFromContext(ctx), e.config.RateLimit.Register); err != nil {
		return nil, err
	}

	if _, err := e.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, account.ErrNotFound) {
		return nil, internalError("find account", err)
	}

	hash, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, err
	}
	rawToken, token, err := e.newSingleUseToken(e.config.EmailVerification.TokenTTL)
	if err != nil {
		return nil, err
	}

	now := e.now()
	acct := &account.Account{
		ID:           internal.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         account.RoleStandard,
		Active:       true,
		Verification: token,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.Create(ctx, acct); err != nil {
		return nil, storeError("create account", err)
	}
	e.log.Info(ctx, "account registered", "account_id", acct.ID)

	if err := e.deliver(ctx, acct.ID, verificationMessage(acct, rawToken, token.ExpiresAt)); err == nil {
		e.metrics.Inc(MetricEmailVerificationRequest)
	}

	return e.issueGrant(ctx, acct)
}

// GetAccount returns the public view of an account.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*account.Public, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, ErrValidation.WithField("account_id")
	}
	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, storeError("find account", err)
	}
	pub := acct.Public(e.now())
	return &pub, nil
}

// UpdateProfile applies the non-nil fields of upd. A new email address is
// stored unverified and receives a fresh verification token.
func (e *Engine) UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (*account.Public, error) {
	pub, emailChanged, err := e.updateProfile(ctx, accountID, upd)
	e.emitAudit(ctx, auditEventProfileUpdate, err == nil, accountID, "", err, func() map[string]string {
		return map[string]string{
			"name_changed":  boolString(upd.Name != nil),
			"email_changed": boolString(emailChanged),
		}
	})
	return pub, err
}

func (e *Engine) updateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (*account.Public, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	if accountID == "" {
		return nil, false, ErrValidation.WithField("account_id")
	}
	if upd.Empty() {
		return nil, false, ErrValidation.WithMessage("no fields to update")
	}

	var name, email string
	var err error
	if upd.Name != nil {
		if name, err = e.normalizeName(*upd.Name); err != nil {
			return nil, false, err
		}
	}
	if upd.Email != nil {
		if email, err = e.normalizeEmail(*upd.Email); err != nil {
			return nil, false, err
		}
		owner, err := e.store.FindByEmail(ctx, email)
		switch {
		case err == nil && owner.ID != accountID:
			return nil, false, ErrEmailTaken
		case err != nil && !errors.Is(err, account.ErrNotFound):
			return nil, false, internalError("find account", err)
		}
	}

	var rawToken string
	var token *account.SingleUseToken
	if upd.Email != nil {
		if rawToken, token, err = e.newSingleUseToken(e.config.EmailVerification.TokenTTL); err != nil {
			return nil, false, err
		}
	}

	emailChanged := false
	updated, err := e.store.Update(ctx, accountID, func(a *account.Account) error {
		emailChanged = false
		if upd.Name != nil {
			a.Name = name
		}
		if upd.Email != nil && email != a.Email {
			a.Email = email
			a.EmailVerified = false
			a.Verification = token
			emailChanged = true
		}
		a.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, false, storeError("update account", err)
	}

	if emailChanged {
		if err := e.deliver(ctx, updated.ID, verificationMessage(updated, rawToken, token.ExpiresAt)); err == nil {
			e.metrics.Inc(MetricEmailVerificationRequest)
		}
	}

	pub := updated.Public(e.now())
	return &pub, emailChanged, nil
}

func verificationMessage(acct *account.Account, rawToken string, expiresAt time.Time) mail.Message {
	return mail.Message{
		To:   acct.Email,
		Kind: mail.KindEmailVerification,
		Data: map[string]string{
			mail.DataName:      acct.Name,
			mail.DataToken:     rawToken,
			mail.DataExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		},
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
