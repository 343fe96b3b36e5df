// Package account defines the account document, its two views and the
// store contract every persistence backend implements.
//
// [Account] is the credentials view. It carries the password digest, lock
// fields and single-use token digests and is meant only for stores and the
// Engine. [Public] is what everything else sees; it has no secret-bearing
// fields at all, so leaking one is a type error rather than a forgotten
// field deletion.
//
// [Store.Update] is the atomic primitive. Lockout increments and single-use
// token consumption are expressed as mutate callbacks that check their
// precondition and return an error to abort, which gives match-and-clear
// semantics on every backend.
package account
