// Package session stores refresh-token families in Redis.
//
// A family is the chain of rotations that starts at one login. It holds a
// pointer to its current session row and the current rotation sequence. Each
// rotation writes a new row, marks the previous row replaced-by the new one
// and moves the pointer, all inside one Lua script keyed on the family hash
// tag. The script is the compare-and-swap: of N concurrent rotations of the
// same token exactly one moves the pointer.
//
// A rotated token presented again is a replay and revokes the whole family.
// When a race grace window is configured, the immediate predecessor presented
// within the window is answered idempotently instead. A successor secret is
// a pure function of its predecessor's secret and the family chain key, so
// the losing request can be handed the exact token the winning rotation
// produced.
//
// Only SHA-256 hashes of refresh secrets are stored.
//
// # What this package must NOT do
//
//   - Import authcore, jwt or account.
//   - Decide whether the account behind a family is allowed to log in.
package session
