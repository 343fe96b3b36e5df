// Package session is the per-account registry of issued refresh-token
// lineages.
//
// A [Record] never holds a raw refresh token, only its digest. The list on
// an account is ordered oldest first and bounded. Adding beyond the bound
// evicts from the front.
//
// [Registry] performs every change through a [Mutator], a single atomic
// read-modify-write of one account's list. Rotation removes the presented
// record and appends its successor in one such update, which makes each
// refresh token valid for exactly one use.
//
// # What this package must NOT do
//
//   - Parse or sign tokens. Callers hand over raw refresh strings and ids.
//   - Import the root goIdentity package or any store implementation.
package session
