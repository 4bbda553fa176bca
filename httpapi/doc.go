// Package httpapi exposes authcore.Engine as a JSON REST API on a chi router.
//
// Public routes live under /auth; caller-scoped routes under /me require a
// bearer access token; /admin routes additionally require Admin, and role
// changes require exactly Manager.
//
// Handlers only decode, call the engine and encode. Status codes come from
// middleware.StatusFor, so the HTTP mapping of every engine error is defined
// in one place.
package httpapi
