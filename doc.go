// Package goIdentity is a credential and session lifecycle engine:
// registration, login with brute-force lockout, rotating refresh tokens,
// password change and reset, and email verification.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. All durable state lives in an [account.Store]; every
// read-modify-write the engine performs goes through Store.Update, which is
// what keeps lockout counting and single-use token redemption race-free.
//
// # Credentials
//
// Passwords are hashed with Argon2id (bcrypt digests are still verified).
// Access and refresh tokens are JWTs signed with separate keys per class.
// Verification and reset tokens are 32 random bytes; only their SHA-256
// digest is stored.
//
// # Sessions
//
// Each refresh token has a session record on its account. Refresh replaces
// the record of the presented token in one update, so a refresh token works
// once. An account keeps at most Config.Session.MaxPerAccount sessions and
// the oldest is evicted first. Password change, password reset and
// deactivation clear every session.
//
// # Errors
//
// Every operation returns either nil or an [*Error] whose [Kind] maps onto
// a transport status. Unknown emails and wrong passwords are
// indistinguishable; lockout and deactivation are reported as such.
package goIdentity
