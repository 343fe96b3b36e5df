package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// AccessCookieName is the cookie Guard falls back to when no bearer token
// is sent.
const AccessCookieName = "access_token"

// Authenticator verifies access tokens. *goIdentity.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*goIdentity.AuthResult, error)
}

// Authorizer checks a permission for a verified caller.
type Authorizer interface {
	Authorize(result *goIdentity.AuthResult, permission string) error
}

type authResultContextKey struct{}

// AuthResultFromContext returns the caller stored by Guard.
func AuthResultFromContext(ctx context.Context) (*goIdentity.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*goIdentity.AuthResult)
	return res, ok && res != nil
}

// WithAuthResult stores res the way Guard does.
func WithAuthResult(ctx context.Context, res *goIdentity.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard rejects requests without a valid access token. The token is read
// from the Authorization bearer header, then from the access cookie.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				WriteError(w, goIdentity.ErrEngineNotReady)
				return
			}

			token, ok := accessToken(r)
			if !ok {
				WriteError(w, goIdentity.ErrTokenInvalid.WithMessage("access token required"))
				return
			}

			res, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// RequirePermission must run after Guard. It answers 403 when the caller's
// role lacks permission.
func RequirePermission(authz Authorizer, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, _ := AuthResultFromContext(r.Context())
			if err := authz.Authorize(res, permission); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if c, err := r.Cookie(AccessCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// StatusFor maps an engine error kind to an HTTP status.
func StatusFor(err error) int {
	switch goIdentity.KindOf(err) {
	case goIdentity.KindValidation:
		return http.StatusBadRequest
	case goIdentity.KindConflict:
		return http.StatusConflict
	case goIdentity.KindUnauthorized:
		return http.StatusUnauthorized
	case goIdentity.KindLocked:
		return http.StatusLocked
	case goIdentity.KindForbidden:
		return http.StatusForbidden
	case goIdentity.KindNotFound:
		return http.StatusNotFound
	case goIdentity.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Body builds the response body for err. Internal causes are not exposed.
func Body(err error) ErrorBody {
	var e *goIdentity.Error
	if !errors.As(err, &e) || e.Kind == goIdentity.KindInternal {
		return ErrorBody{Error: goIdentity.ErrInternal.Code, Message: goIdentity.ErrInternal.Message}
	}
	return ErrorBody{Error: e.Code, Message: e.Message, Field: e.Field}
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(StatusFor(err))
	_ = json.NewEncoder(w).Encode(Body(err))
}
