package internal

import (
	"testing"
)

func TestNewOTPDigitsOnly(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := NewOTP(6)
		if err != nil {
			t.Fatalf("NewOTP failed: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in %q", code)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 150 {
		t.Fatalf("codes look predictable: %d distinct of 200", len(seen))
	}
}

func TestNewOTPRejectsWidth(t *testing.T) {
	if _, err := NewOTP(4); err == nil {
		t.Fatal("expected error for 4 digits")
	}
	if _, err := NewOTP(11); err == nil {
		t.Fatal("expected error for 11 digits")
	}
}

func TestRefreshTokenLayout(t *testing.T) {
	fid, _ := NewID16()
	sid, _ := NewID16()
	secret, _ := NewRefreshSecret()
	in := RefreshToken{FamilyID: fid.String(), SessionID: sid.String(), Sequence: 42, Secret: secret}

	token, err := EncodeRefreshToken(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}

	if _, err := DecodeRefreshToken(token[:len(token)-4]); err == nil {
		t.Fatal("expected truncated token to fail")
	}
}

func TestNextRefreshSecretDeterministic(t *testing.T) {
	key := []byte("chain-key")
	secret, _ := NewRefreshSecret()

	a := NextRefreshSecret(key, secret)
	b := NextRefreshSecret(key, secret)
	if a != b {
		t.Fatal("expected deterministic successor")
	}
	if a == secret {
		t.Fatal("successor must differ from input")
	}
	if NextRefreshSecret([]byte("other"), secret) == a {
		t.Fatal("successor must depend on chain key")
	}
}
