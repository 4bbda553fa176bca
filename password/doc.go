// Package password hashes and verifies account passwords and enforces the
// password policy applied at registration, reset and change.
//
// Hashes use PHC-style strings so several schemes can coexist in one account
// table:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//	$2b$<cost>$<salt+hash>
//
// [Multi] hashes with its primary scheme and verifies with whichever scheme
// produced the stored string. NeedsRehash reports when a stored hash should be
// replaced on the next successful login.
//
// This package performs no I/O and never logs plaintext.
package password
