package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

type fakeAuthorizer struct {
	token string
	err   error
	got   permission.Requirement
}

func (f *fakeAuthorizer) Authorize(_ context.Context, token string, req permission.Requirement) (*authcore.Principal, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	if token != f.token {
		return nil, authcore.ErrTokenInvalid
	}
	return &authcore.Principal{AccountID: "acct-1", Role: permission.RoleAdmin}, nil
}

func protected(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := authcore.PrincipalFromContext(r.Context())
		if !ok {
			t.Error("principal missing from context")
		}
		_, _ = w.Write([]byte(p.AccountID))
	})
}

func TestGuardAdmitsValidBearer(t *testing.T) {
	fake := &fakeAuthorizer{token: "good"}
	h := RequireRole(fake, permission.RoleAdmin)(protected(t))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "bearer good")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "acct-1" {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Body.String())
	}
	if fake.got.String() != ">=admin" {
		t.Fatalf("unexpected requirement %s", fake.got)
	}
}

func TestGuardDenials(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
		status int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"basic auth", "Basic Zm9vOmJhcg==", nil, http.StatusUnauthorized},
		{"empty bearer", "Bearer   ", nil, http.StatusUnauthorized},
		{"invalid token", "Bearer nope", nil, http.StatusUnauthorized},
		{"expired", "Bearer good", authcore.ErrTokenExpired, http.StatusUnauthorized},
		{"blocked", "Bearer good", authcore.ErrAccountBlocked, http.StatusForbidden},
		{"stale", "Bearer good", authcore.ErrTokenStale, http.StatusForbidden},
		{"role", "Bearer good", authcore.ErrForbidden, http.StatusForbidden},
		{"store down", "Bearer good", authcore.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"internal", "Bearer good", errors.New("boom"), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := RequireAuthenticated(&fakeAuthorizer{token: "good", err: tc.err})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if tc.status == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("401 without WWW-Authenticate")
			}
		})
	}
}

func TestGuardNilEngine(t *testing.T) {
	h := Guard(nil, permission.AtLeast(permission.RoleUser))(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSetRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	SetRetryAfter(rr, &authcore.RateLimitError{Scope: "login", RetryAfter: 1500 * time.Millisecond})
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
	if StatusFor(&authcore.RateLimitError{}) != http.StatusTooManyRequests {
		t.Fatal("rate limit must map to 429")
	}
}

func TestClientInfo(t *testing.T) {
	var ip, ua string
	h := ClientInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, ua = authcore.ClientIPFromContext(r.Context()), authcore.UserAgentFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "tester/1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if ip != "192.0.2.10" || ua != "tester/1" {
		t.Fatalf("unexpected client info %q %q", ip, ua)
	}
}
