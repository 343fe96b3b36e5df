package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/session"
)

// Refresh exchanges a refresh token for a new pair. The presented token's
// session record is replaced in the same update, so each refresh token
// works exactly once. The session id is kept across rotations.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	grant, userID, err := e.rotate(ctx, refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", err, nil)
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, grant.SessionID, nil, nil)
	return grant, nil
}

func (e *Engine) rotate(ctx context.Context, raw string) (*Grant, string, error) {
	if err := e.ready(); err != nil {
		return nil, "", err
	}
	if raw == "" {
		return nil, "", ErrRefreshTokenMissing
	}

	claims, err := e.refresh.Parse(raw)
	if err != nil {
		return nil, "", tokenError(err)
	}
	accountID := claims.Subject

	acct, err := e.store.FindByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, accountID, ErrTokenInvalid
	}
	if err != nil {
		return nil, accountID, internalError("find account", err)
	}

	now := e.now()
	idx := session.FindByHash(acct.Sessions, internal.HashToken(raw))
	if idx < 0 || acct.Sessions[idx].Expired(now) {
		return nil, accountID, ErrTokenInvalid
	}
	if !acct.Active {
		return nil, accountID, ErrAccountDeactivated
	}

	sessionID := acct.Sessions[idx].ID
	grant, err := e.mintPair(acct, sessionID)
	if err != nil {
		return nil, accountID, err
	}

	rec, err := e.sessions.Rotate(ctx, accountID, raw, session.Issue{
		ID:        sessionID,
		RawToken:  grant.RefreshToken,
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	})
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, account.ErrNotFound):
		return nil, accountID, ErrTokenInvalid
	case err != nil:
		return nil, accountID, internalError("rotate session", err)
	}

	view := acct.Clone()
	view.Sessions, _ = session.Append(session.RemoveAt(view.Sessions, idx), rec, e.sessions.MaxPerAccount(), now)
	grant.Account = view.Public(now)
	return grant, accountID, nil
}

// Logout ends the session of refreshToken. It never fails for tokens that
// are unparsable, expired, unknown or already logged out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := e.refresh.Parse(refreshToken)
	if err != nil {
		return nil
	}

	removed, err := e.sessions.Remove(ctx, claims.Subject, refreshToken)
	if errors.Is(err, account.ErrNotFound) {
		return nil
	}
	if err != nil {
		return internalError("remove session", err)
	}
	if removed {
		e.metrics.Inc(MetricLogout)
		e.emitAudit(ctx, auditEventLogoutSession, true, claims.Subject, claims.SessionID, nil, nil)
	}
	return nil
}

// LogoutAll ends every session of an authenticated account.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accountID == "" {
		return ErrValidation.WithField("account_id")
	}

	err := e.sessions.RemoveAll(ctx, accountID)
	if err != nil {
		err = storeError("remove sessions", err)
	} else {
		e.metrics.Inc(MetricLogoutAll)
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, accountID, "", err, nil)
	return err
}

// Authenticate verifies an access token without touching the store. A
// revoked session's access token stays valid until it expires.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, ErrTokenInvalid.WithMessage("access token required")
	}

	claims, err := e.access.Parse(accessToken)
	if err != nil {
		return nil, tokenError(err)
	}
	role := account.Role(claims.Role)
	if !role.Valid() {
		return nil, ErrTokenInvalid
	}

	result := &AuthResult{
		AccountID: claims.Subject,
		Role:      role,
		SessionID: claims.SessionID,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return result, nil
}

// Authorize reports whether result's role grants perm.
func (e *Engine) Authorize(result *AuthResult, perm string) error {
	if result == nil || result.AccountID == "" {
		return ErrTokenInvalid
	}
	if !e.roles.Allowed(string(result.Role), perm) {
		return ErrInsufficientRole
	}
	return nil
}

// ListSessions returns the unexpired sessions of an account, oldest first.
func (e *Engine) ListSessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
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

	live := session.Active(acct.Sessions, e.now())
	out := make([]SessionInfo, 0, len(live))
	for _, rec := range live {
		out = append(out, SessionInfo{
			ID:        rec.ID,
			UserAgent: rec.UserAgent,
			IP:        rec.IP,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	return out, nil
}

// RevokeSession ends one session by id.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accountID == "" || sessionID == "" {
		return ErrValidation.WithMessage("account id and session id required")
	}

	removed, err := e.sessions.RemoveByID(ctx, accountID, sessionID)
	switch {
	case err != nil:
		err = storeError("remove session", err)
	case !removed:
		err = ErrSessionNotFound
	default:
		e.metrics.Inc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventSessionRevoked, err == nil, accountID, sessionID, err, nil)
	return err
}
