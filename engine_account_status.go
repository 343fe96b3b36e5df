package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
)

var errUnchanged = errors.New("account unchanged")

// SetAccountActive activates or deactivates an account. actor needs
// accounts.manage. Deactivation ends every session of the account.
func (e *Engine) SetAccountActive(ctx context.Context, actor *AuthResult, accountID string, active bool) error {
	err := e.setAccountActive(ctx, actor, accountID, active)
	if err == nil && !active {
		e.metrics.Inc(MetricAccountDeactivated)
	}
	e.emitAudit(ctx, auditEventAccountStatusChange, err == nil, accountID, "", err, func() map[string]string {
		meta := map[string]string{"active": boolString(active)}
		if actor != nil {
			meta["actor_id"] = actor.AccountID
		}
		return meta
	})
	return err
}

func (e *Engine) setAccountActive(ctx context.Context, actor *AuthResult, accountID string, active bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.Authorize(actor, permission.AccountsManage); err != nil {
		return err
	}
	if accountID == "" {
		return ErrValidation.WithField("account_id")
	}

	_, err := e.store.Update(ctx, accountID, func(a *account.Account) error {
		if a.Active == active {
			return errUnchanged
		}
		a.Active = active
		if !active {
			a.Sessions = []session.Record{}
		}
		a.UpdatedAt = e.now()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return storeError("update account status", err)
	}
	e.log.Info(ctx, "account status changed", "account_id", accountID, "active", active)
	return nil
}

// SetRole assigns role to an account. actor needs roles.assign. Existing
// access tokens keep the old role until they expire.
func (e *Engine) SetRole(ctx context.Context, actor *AuthResult, accountID string, role account.Role) error {
	err := e.setRole(ctx, actor, accountID, role)
	if err == nil {
		e.metrics.Inc(MetricRoleChanged)
	}
	e.emitAudit(ctx, auditEventRoleChange, err == nil, accountID, "", err, func() map[string]string {
		meta := map[string]string{"role": string(role)}
		if actor != nil {
			meta["actor_id"] = actor.AccountID
		}
		return meta
	})
	return err
}

func (e *Engine) setRole(ctx context.Context, actor *AuthResult, accountID string, role account.Role) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.Authorize(actor, permission.RolesAssign); err != nil {
		return err
	}
	if accountID == "" {
		return ErrValidation.WithField("account_id")
	}
	if !role.Valid() {
		return ErrValidation.WithField("role").WithMessage("unknown role")
	}

	_, err := e.store.Update(ctx, accountID, func(a *account.Account) error {
		if a.Role == role {
			return errUnchanged
		}
		a.Role = role
		a.UpdatedAt = e.now()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return storeError("update role", err)
	}
	e.log.Info(ctx, "role changed", "account_id", accountID, "role", string(role))
	return nil
}
