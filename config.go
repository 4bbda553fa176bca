package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override; Build validates it.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	OTP       OTPConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Notifier  NotifierConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	KeyID         string
	PrivateKey    []byte
	PublicKey     []byte
	// VerifyKeys keeps retired keys verifying until their tokens expire.
	VerifyKeys map[string][]byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory      uint32 // in KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// BcryptCost enables verification of imported bcrypt hashes. Zero disables it.
	BcryptCost     int
	UpgradeOnLogin bool

	MinLength int
	MaxLength int
	MinScore  int // zxcvbn score, 0 disables
}

/*
====================================
OTP CONFIG
====================================
*/

type OTPConfig struct {
	RedisPrefix string
	TTL         time.Duration
	MaxAttempts int
	Digits      int
	Pepper      []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix      string
	RefreshTTL       time.Duration
	AbsoluteLifetime time.Duration
	// RaceGrace lets a just-rotated refresh token be answered idempotently
	// for this long. Zero makes every replay a reuse.
	RaceGrace time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitRule is a fixed window. Limit 0 disables the scope.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

type RateLimitConfig struct {
	RedisPrefix string
	OTPIssue    RateLimitRule
	Login       RateLimitRule // per email
	LoginIP     RateLimitRule // per client IP
	OTPVerify   RateLimitRule
	Refresh     RateLimitRule // per refresh family
}

/*
====================================
STORE, NOTIFIER, AUDIT, METRICS
====================================
*/

type StoreConfig struct {
	// OperationTimeout bounds every single store call.
	OperationTimeout time.Duration
	// ReadRetries applies to idempotent account reads only.
	ReadRetries  int
	RetryBackoff time.Duration
}

type NotifierConfig struct {
	Timeout time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// DeliveryTimeout bounds one sink call. Zero means no deadline.
	DeliveryTimeout time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func DefaultConfig() Config {
	argon := password.DefaultArgon2Config()
	policy := password.DefaultPolicy()
	otpDefaults := otp.DefaultConfig()
	sessionDefaults := session.DefaultConfig()

	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			KeyID:         "k1",
			Issuer:        "authcore",
		},
		Password: PasswordConfig{
			Memory:         argon.Memory,
			Time:           argon.Time,
			Parallelism:    argon.Parallelism,
			SaltLength:     argon.SaltLength,
			KeyLength:      argon.KeyLength,
			UpgradeOnLogin: true,
			MinLength:      policy.MinLength,
			MaxLength:      policy.MaxLength,
			MinScore:       policy.MinScore,
		},
		OTP: OTPConfig{
			RedisPrefix: "otp",
			TTL:         otpDefaults.TTL,
			MaxAttempts: otpDefaults.MaxAttempts,
			Digits:      otpDefaults.Digits,
		},
		Session: SessionConfig{
			RedisPrefix:      "rs",
			RefreshTTL:       sessionDefaults.RefreshTTL,
			AbsoluteLifetime: sessionDefaults.AbsoluteLifetime,
			RaceGrace:        sessionDefaults.RaceGrace,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "rl",
			OTPIssue:    RateLimitRule{Limit: 1, Window: time.Minute},
			Login:       RateLimitRule{Limit: 5, Window: 15 * time.Minute},
			LoginIP:     RateLimitRule{Limit: 20, Window: 15 * time.Minute},
			OTPVerify:   RateLimitRule{Limit: 10, Window: 15 * time.Minute},
			Refresh:     RateLimitRule{Limit: 30, Window: time.Minute},
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
			ReadRetries:      2,
			RetryBackoff:     25 * time.Millisecond,
		},
		Notifier: NotifierConfig{
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:         false,
			BufferSize:      1024,
			DropIfFull:      true,
			DeliveryTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.OTP.Pepper = cloneBytes(cfg.OTP.Pepper)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints. Key material itself is checked
// when Build constructs the token manager.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.KeyID == "" {
		return errors.New("JWT KeyID must be set")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey must be set")
	}
	if c.JWT.AccessTTL >= c.Session.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than Session RefreshTTL")
	}

	if _, err := password.NewArgon2(c.argon2Config()); err != nil {
		return err
	}
	if c.Password.BcryptCost != 0 {
		if _, err := password.NewBcrypt(c.Password.BcryptCost); err != nil {
			return err
		}
	}
	if err := c.passwordPolicy().Validate(); err != nil {
		return err
	}
	if err := c.otpConfig().Validate(); err != nil {
		return err
	}
	if err := c.sessionConfig().Validate(); err != nil {
		return err
	}

	for scope, rule := range c.ratePolicies() {
		if rule.Limit < 0 {
			return fmt.Errorf("RateLimit %s limit must be >= 0", scope)
		}
		if rule.Limit > 0 && rule.Window <= 0 {
			return fmt.Errorf("RateLimit %s window must be > 0", scope)
		}
	}

	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	if c.Store.ReadRetries < 0 || c.Store.ReadRetries > 5 {
		return errors.New("Store ReadRetries must be in [0,5]")
	}
	if c.Store.RetryBackoff < 0 {
		return errors.New("Store RetryBackoff must be >= 0")
	}
	if c.Notifier.Timeout <= 0 {
		return errors.New("Notifier Timeout must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.DeliveryTimeout < 0 {
		return errors.New("Audit DeliveryTimeout must be >= 0")
	}
	return nil
}

func (c *Config) argon2Config() password.Argon2Config {
	return password.Argon2Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c *Config) passwordPolicy() password.Policy {
	return password.Policy{
		MinLength: c.Password.MinLength,
		MaxLength: c.Password.MaxLength,
		MinScore:  c.Password.MinScore,
	}
}

func (c *Config) otpConfig() otp.Config {
	return otp.Config{
		TTL:         c.OTP.TTL,
		MaxAttempts: c.OTP.MaxAttempts,
		Digits:      c.OTP.Digits,
		Pepper:      c.OTP.Pepper,
	}
}

func (c *Config) sessionConfig() session.Config {
	return session.Config{
		RefreshTTL:       c.Session.RefreshTTL,
		AbsoluteLifetime: c.Session.AbsoluteLifetime,
		RaceGrace:        c.Session.RaceGrace,
	}
}

func (c *Config) ratePolicies() map[rate.Scope]rate.Policy {
	toPolicy := func(r RateLimitRule) rate.Policy {
		return rate.Policy{Limit: r.Limit, Window: r.Window}
	}
	return map[rate.Scope]rate.Policy{
		rate.ScopeOTPIssue:  toPolicy(c.RateLimit.OTPIssue),
		rate.ScopeLogin:     toPolicy(c.RateLimit.Login),
		rate.ScopeLoginIP:   toPolicy(c.RateLimit.LoginIP),
		rate.ScopeOTPVerify: toPolicy(c.RateLimit.OTPVerify),
		rate.ScopeRefresh:   toPolicy(c.RateLimit.Refresh),
	}
}

func (c *Config) jwtConfig() jwt.Config {
	return jwt.Config{
		AccessTTL:     c.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(c.JWT.SigningMethod),
		KeyID:         c.JWT.KeyID,
		PrivateKey:    cloneBytes(c.JWT.PrivateKey),
		PublicKey:     cloneBytes(c.JWT.PublicKey),
		VerifyKeys:    c.JWT.VerifyKeys,
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		Leeway:        c.JWT.Leeway,
	}
}
