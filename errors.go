package goIdentity

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindLocked
	KindForbidden
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindLocked:
		return "locked"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	}
	return "internal"
}

// Error is the single error type returned by Engine methods.
//
// Two Errors match under errors.Is when their Codes are equal, so a
// sentinel matches every error derived from it with a different message,
// field or cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithField returns a copy naming the offending input field.
func (e *Error) WithField(field string) *Error {
	out := *e
	out.Field = field
	return &out
}

// WithMessage returns a copy with msg replacing the default message.
func (e *Error) WithMessage(msg string) *Error {
	out := *e
	out.Message = msg
	return &out
}

// Wrap returns a copy carrying cause.
func (e *Error) Wrap(cause error) *Error {
	out := *e
	out.Err = cause
	return &out
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrValidation      = newError(KindValidation, "validation_failed", "invalid request")
	ErrPasswordPolicy  = newError(KindValidation, "password_policy", "password does not meet policy")
	ErrPasswordReuse   = newError(KindValidation, "password_reuse", "new password must differ from current password")
	ErrAlreadyVerified = newError(KindValidation, "already_verified", "email already verified")

	ErrEmailTaken = newError(KindConflict, "email_taken", "email already registered")

	ErrInvalidCredentials  = newError(KindUnauthorized, "invalid_credentials", "invalid email or password")
	ErrTokenExpired        = newError(KindUnauthorized, "token_expired", "token expired")
	ErrTokenInvalid        = newError(KindUnauthorized, "token_invalid", "token invalid")
	ErrRefreshTokenMissing = newError(KindUnauthorized, "refresh_token_missing", "refresh token required")
	ErrEmailUnverified     = newError(KindUnauthorized, "email_unverified", "email not verified")

	ErrAccountLocked = newError(KindLocked, "account_locked", "account temporarily locked")

	ErrAccountDeactivated = newError(KindForbidden, "account_deactivated", "account deactivated")
	ErrInsufficientRole   = newError(KindForbidden, "insufficient_role", "insufficient role")

	ErrAccountNotFound = newError(KindNotFound, "account_not_found", "account not found")
	ErrSessionNotFound = newError(KindNotFound, "session_not_found", "session not found")

	ErrRateLimited = newError(KindRateLimited, "rate_limited", "too many requests")

	ErrInternal       = newError(KindInternal, "internal_error", "internal error")
	ErrEngineNotReady = newError(KindInternal, "engine_not_ready", "engine not initialized")
)

// KindOf returns the Kind of err, or KindInternal for errors not produced
// by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable machine code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

// internalError wraps a backend failure. op names the step that failed.
func internalError(op string, cause error) error {
	return ErrInternal.Wrap(fmt.Errorf("%s: %w", op, cause))
}
