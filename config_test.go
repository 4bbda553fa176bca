package authcore

import (
	"crypto/ed25519"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "PrivateKey") {
		t.Fatalf("expected missing key error, got %v", err)
	}

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	cfg.JWT.PrivateKey = priv
	cfg.OTP.Pepper = []byte("0123456789abcdef")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults plus keys to validate, got %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }},
		{"empty key id", func(c *Config) { c.JWT.KeyID = "" }},
		{"access outlives refresh", func(c *Config) { c.JWT.AccessTTL = 8 * 24 * time.Hour }},
		{"weak argon2 memory", func(c *Config) { c.Password.Memory = 1024 }},
		{"bad bcrypt cost", func(c *Config) { c.Password.BcryptCost = 99 }},
		{"policy max below min", func(c *Config) { c.Password.MaxLength = 2 }},
		{"policy score out of range", func(c *Config) { c.Password.MinScore = 5 }},
		{"short pepper", func(c *Config) { c.OTP.Pepper = []byte("short") }},
		{"too few digits", func(c *Config) { c.OTP.Digits = 4 }},
		{"zero otp attempts", func(c *Config) { c.OTP.MaxAttempts = 0 }},
		{"absolute below refresh", func(c *Config) { c.Session.AbsoluteLifetime = time.Hour }},
		{"negative rate limit", func(c *Config) { c.RateLimit.Login.Limit = -1 }},
		{"limit without window", func(c *Config) { c.RateLimit.Refresh.Window = 0 }},
		{"zero store timeout", func(c *Config) { c.Store.OperationTimeout = 0 }},
		{"too many retries", func(c *Config) { c.Store.ReadRetries = 6 }},
		{"zero notifier timeout", func(c *Config) { c.Notifier.Timeout = 0 }},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDisabledRateRuleIsValid(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.LoginIP = RateLimitRule{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("a zero rule disables the scope: %v", err)
	}
}

func TestWithConfigClonesKeys(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.JWT.PrivateKey[0] ^= 0xff
	if b.config.JWT.PrivateKey[0] == cfg.JWT.PrivateKey[0] {
		t.Fatal("builder must not alias caller key material")
	}
}
