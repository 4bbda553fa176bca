// Package otp issues and verifies one-time numeric codes in Redis.
//
// One record exists per (purpose, account). Issuing overwrites the previous
// record in a MULTI/EXEC block. Verification is a single Lua script that
// decrements the attempt counter, compares the stored HMAC of the code and
// deletes the record on success or on exhaustion, so concurrent verifiers
// against the same record see a consistent counter and at most one succeeds.
//
// Only the HMAC of a code is stored. The plaintext is returned by Issue for
// delivery and never persisted.
package otp
