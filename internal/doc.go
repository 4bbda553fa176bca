// Package internal contains helper utilities private to authcore: random
// identifiers, OTP digits and the opaque refresh token layout.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - metrics: padded atomic counters behind Engine.MetricsSnapshot
//   - rate: Redis-backed fixed-window limiter shared by every throttled flow
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Perform any I/O.
package internal
