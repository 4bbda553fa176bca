package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

// Authorizer is the part of authcore.Engine the guards need.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken string, req permission.Requirement) (*authcore.Principal, error)
}

// Guard rejects requests whose bearer token does not satisfy req and stores
// the authorized principal in the request context.
func Guard(engine Authorizer, req permission.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="authcore"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, err := engine.Authorize(r.Context(), token, req)
			if err != nil {
				writeDenied(w, err)
				return
			}

			ctx := authcore.WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientInfo copies the remote IP and User-Agent into the request context so
// rate limits and audit events can see them. Put it in front of the router;
// behind a proxy, run chi's RealIP (or equivalent) first.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ip := remoteIP(r.RemoteAddr); ip != "" {
			ctx = authcore.WithClientIP(ctx, ip)
		}
		if ua := r.UserAgent(); ua != "" {
			ctx = authcore.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StatusFor maps an engine error onto an HTTP status.
func StatusFor(err error) int {
	switch authcore.KindOf(err) {
	case authcore.KindValidation:
		return http.StatusBadRequest
	case authcore.KindUnauthenticated:
		return http.StatusUnauthorized
	case authcore.KindForbidden:
		return http.StatusForbidden
	case authcore.KindNotFound:
		return http.StatusNotFound
	case authcore.KindConflict:
		return http.StatusConflict
	case authcore.KindRateLimited:
		return http.StatusTooManyRequests
	case authcore.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SetRetryAfter adds a Retry-After header when err carries a rate limit.
func SetRetryAfter(w http.ResponseWriter, err error) {
	var rl *authcore.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		secs := int(rl.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}

func writeDenied(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="authcore", error="invalid_token"`)
	case http.StatusTooManyRequests:
		SetRetryAfter(w, err)
	case http.StatusServiceUnavailable, http.StatusForbidden:
	default:
		// never leak internals through the guard
		status = http.StatusUnauthorized
	}
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
