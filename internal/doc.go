// Package internal holds helpers private to goIdentity: random token
// generation, token digests and identifiers.
//
// # Sub-packages
//
//   - audit: async audit event dispatch (Dispatcher + Sink implementations)
//   - logging: slog-backed structured logger
//   - rate: injected auxiliary throttles (Redis fixed window, in-memory)
//   - security: configuration posture report
//   - serverconfig: environment configuration for cmd/identityd
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
package internal
