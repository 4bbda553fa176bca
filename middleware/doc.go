// Package middleware adapts authcore.Engine authorization to net/http.
//
// # Guards
//
//   - [Guard]: checks the bearer token against an explicit requirement.
//   - [RequireAuthenticated], [RequireRole], [RequireOneOf]: shorthands.
//   - [ClientInfo]: records remote IP and User-Agent for rate limits and audit.
//
// Each guard reads the Authorization header, calls Engine.Authorize and stores
// the principal with authcore.WithPrincipal. Denials map onto 401, 403, 429 or
// 503; anything else is reported as 401.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or the account store.
//   - Make authorization decisions beyond pass/reject from Engine.Authorize.
package middleware
