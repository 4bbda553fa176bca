// Package authcore is an identity and session core: registration with
// one-time-code email verification, password login, rotating refresh tokens
// with reuse detection, password reset, account lifecycle and role-based
// authorization.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. The engine keeps no per-request
// state in process; the account store and Redis are the only synchronization
// points, so any number of instances may serve the same users.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([TokenPair], [Principal], [SessionInfo], [MetricsSnapshot]).
// The building blocks live in their own packages: account (durable store
// contract), session (refresh families), otp, jwt, password and permission.
// Rate limiting, audit dispatch and metrics live under internal/.
//
// # Failure policy
//
// Every error maps to a [Kind] through [KindOf]. Store failures and timeouts
// deny: no path grants access on an ambiguous result. Idempotent account
// reads are retried a bounded number of times; the refresh rotation is not.
//
// # What this package must NOT do
//
//   - Expose Redis clients or key layouts in its public API.
//   - Block an operation on email delivery. Notifications are best effort.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
