package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore/permission"
)

// RequireAuthenticated admits any active account with a current token.
func RequireAuthenticated(engine Authorizer) func(http.Handler) http.Handler {
	return Guard(engine, permission.AtLeast(permission.RoleUser))
}

// RequireRole admits lowest and every role ranked above it.
func RequireRole(engine Authorizer, lowest permission.Role) func(http.Handler) http.Handler {
	return Guard(engine, permission.AtLeast(lowest))
}

// RequireOneOf admits exactly the listed roles. Use it for endpoints where a
// higher role must not imply access, such as managing administrators.
func RequireOneOf(engine Authorizer, roles ...permission.Role) func(http.Handler) http.Handler {
	return Guard(engine, permission.OneOf(roles...))
}
