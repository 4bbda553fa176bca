package jwt

import (
	"testing"
	"time"
)

// FuzzJWTParseAccess: no panics, every failure maps to a package sentinel.
func FuzzJWTParseAccess(f *testing.F) {
	mgr, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodHS256,
		KeyID:         "k1",
		PrivateKey:    hsSecret,
		Issuer:        "fuzz",
	})
	if err != nil {
		f.Fatal(err)
	}
	if tok, _, err := mgr.CreateAccess(AccessInput{AccountID: "u", Role: "user", TokenVersion: 1}); err == nil {
		f.Add(tok)
	}
	f.Add("")
	f.Add("eyJhbGciOiJub25lIn0.e30.")
	f.Add("a.b.c")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.ParseAccess(input)
		if err == nil && claims.Subject == "" {
			t.Fatal("accepted token without subject")
		}
	})
}
