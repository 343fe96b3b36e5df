// Package password hashes and verifies account passwords.
//
// Two algorithms are supported. [Argon2] writes PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// and [Bcrypt] writes the standard $2a$/$2b$ modular crypt strings. [Multi]
// hashes with one of them and verifies digests produced by either, so stored
// hashes keep working after the default algorithm changes.
//
// Digests are only produced when a password is newly set. Verification never
// rewrites a stored hash.
//
// [Pool] bounds how many hash or verify calls run at once. Both algorithms
// are deliberately CPU bound and an unbounded burst of logins would otherwise
// starve every other goroutine in the process.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Enforce password policy (length, character classes). The Engine does that.
//   - Log plaintext passwords.
package password
