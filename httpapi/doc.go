// Package httpapi serves the engine over HTTP with echo.
//
// Public credential routes live under Config.Prefix; routes that act on
// the caller's own account sit behind middleware.Guard. Tokens are returned
// in the JSON body and, as HttpOnly cookies, scoped so the refresh cookie
// only reaches the credential endpoints.
package httpapi
