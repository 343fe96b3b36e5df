package goIdentity

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/logging"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/lockout"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
)

// Engine runs every credential and session flow. It is safe for concurrent
// use; all shared state lives in the account store.
type Engine struct {
	config Config

	store    account.Store
	mailer   mail.Deliverer
	hasher   *password.Pool
	access   *jwt.Manager
	refresh  *jwt.Manager
	sessions *session.Registry
	lockout  lockout.Policy
	limiter  rate.Limiter
	roles    *permission.RoleManager

	audit   *audit.Dispatcher
	metrics *Metrics
	log     logging.Logger
	clock   func() time.Time

	// dummyHash is verified against when the email is unknown so both
	// paths cost one hash.
	dummyHash string
}

// Close stops the audit dispatcher, waiting at most Audit.FlushTimeout for
// queued events. The store and mailer are owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Shutdown is Close bounded by ctx instead of Audit.FlushTimeout. Audit
// events still queued when ctx ends are dropped and counted.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.audit.Shutdown(ctx)
}

// Metrics returns the live counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot copies every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

/*
====================================
SHARED STEPS
====================================
*/

// issueGrant mints an access/refresh pair for acct and registers the
// refresh token as a new session.
func (e *Engine) issueGrant(ctx context.Context, acct *account.Account) (*Grant, error) {
	sessionID := internal.NewID()

	grant, err := e.mintPair(acct, sessionID)
	if err != nil {
		return nil, err
	}

	rec, err := e.sessions.Add(ctx, acct.ID, session.Issue{
		ID:        sessionID,
		RawToken:  grant.RefreshToken,
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, internalError("add session", err)
	}
	e.metrics.Inc(MetricSessionCreated)

	now := e.now()
	view := acct.Clone()
	view.Sessions, _ = session.Append(view.Sessions, rec, e.sessions.MaxPerAccount(), now)
	grant.Account = view.Public(now)
	return grant, nil
}

func (e *Engine) mintPair(acct *account.Account, sessionID string) (*Grant, error) {
	accessToken, accessExp, err := e.access.Issue(acct.ID, sessionID, string(acct.Role))
	if err != nil {
		return nil, internalError("issue access token", err)
	}
	refreshToken, refreshExp, err := e.refresh.Issue(acct.ID, sessionID, string(acct.Role))
	if err != nil {
		return nil, internalError("issue refresh token", err)
	}
	return &Grant{
		SessionID:        sessionID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) hashPassword(ctx context.Context, plain string) (string, error) {
	encoded, err := e.hasher.Hash(ctx, plain)
	if err != nil {
		return "", internalError("hash password", err)
	}
	return encoded, nil
}

func (e *Engine) verifyPassword(ctx context.Context, plain, encoded string) (bool, error) {
	ok, err := e.hasher.Verify(ctx, plain, encoded)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, internalError("verify password", ctxErr)
		}
		// An unreadable digest can never match.
		e.log.Warn(ctx, "stored password digest rejected", "error", err)
		return false, nil
	}
	return ok, nil
}

// newSingleUseToken returns the raw token for the message and the stored
// record.
func (e *Engine) newSingleUseToken(ttl time.Duration) (string, *account.SingleUseToken, error) {
	raw, digest, err := internal.NewOpaqueToken()
	if err != nil {
		return "", nil, internalError("generate token", err)
	}
	return raw, &account.SingleUseToken{Hash: digest, ExpiresAt: e.now().Add(ttl)}, nil
}

// deliver hands msg to the mailer. Failures are logged and counted and
// returned for callers that need to roll back.
func (e *Engine) deliver(ctx context.Context, accountID string, msg mail.Message) error {
	id, err := e.mailer.Deliver(ctx, msg)
	if err != nil {
		e.metrics.Inc(MetricMailDeliveryFailure)
		e.log.Error(ctx, "mail delivery failed", "kind", string(msg.Kind), "account_id", accountID, "error", err)
		e.emitAudit(ctx, auditEventMailDeliveryFailure, false, accountID, "", err, func() map[string]string {
			return map[string]string{"kind": string(msg.Kind)}
		})
		return err
	}
	e.log.Info(ctx, "mail delivered", "kind", string(msg.Kind), "account_id", accountID, "message_id", id)
	return nil
}

// throttle applies rule to subject. A limiter backend failure is logged and
// the request is let through.
func (e *Engine) throttle(ctx context.Context, action, subject string, rule RateLimitRule) error {
	if e.limiter == nil || subject == "" {
		return nil
	}
	r := rate.Rule{Limit: rule.Limit, Window: rule.Window}
	if !r.Enabled() {
		return nil
	}

	err := e.limiter.Allow(ctx, action, subject, r)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metrics.Inc(MetricRateLimitHit)
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{"action": action}
		})
		return ErrRateLimited
	default:
		e.log.Warn(ctx, "rate limiter unavailable", "action", action, "error", err)
		return nil
	}
}

// storeError maps store sentinels onto engine errors.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, account.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, account.ErrDuplicateEmail):
		return ErrEmailTaken
	default:
		return internalError(op, err)
	}
}

// tokenError maps jwt verification failures.
func tokenError(err error) error {
	if errors.Is(err, jwt.ErrExpired) {
		return ErrTokenExpired.Wrap(err)
	}
	return ErrTokenInvalid.Wrap(err)
}
