// Package jwt mints and verifies short-lived access tokens.
//
// Every token carries a kid header. Verification looks the kid up in
// Config.VerifyKeys so a new signing key can be introduced while tokens signed
// by the previous key stay valid until they expire.
//
// Parse failures are collapsed into three sentinels: ErrTokenExpired,
// ErrTokenSignature and ErrTokenMalformed.
package jwt
