// Package rate implements the fixed-window throttle the engine puts in front
// of registration, login, password-reset requests and verification resends.
//
// # Window semantics
//
// A window opens on the first hit for an (action, subject) pair and lasts
// Rule.Window. Hits beyond Rule.Limit inside the window fail with
// ErrRateLimited. Subjects are hashed before they become keys, so emails and
// IPs never appear in Redis in clear text.
//
// Two backends exist: Redis (INCR plus EXPIRE on the first hit, shared by
// every instance) and Memory (single process).
package rate
