// Package jwt issues and verifies the signed session tokens of one token class.
//
// The Engine builds two managers, one for short-lived access tokens and one for
// refresh tokens, each with its own key. A token also carries its class in the
// "typ" claim, so a refresh token is rejected by the access manager even when an
// operator mistakenly configures the same secret for both.
//
// Every verification failure is reported as either [ErrExpired] or [ErrInvalid]
// so callers can choose the response without inspecting library errors.
package jwt
