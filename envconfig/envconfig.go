// Package envconfig loads authcore settings from the process environment and
// an optional .env file. Every variable carries the AUTHCORE_ prefix.
//
// Usage:
//
//	env, err := envconfig.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := env.EngineConfig()
package envconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/MrEthical07/authcore"
)

const Prefix = "AUTHCORE_"

// Env mirrors the deployable settings. Zero values for the engine tunables
// keep authcore.DefaultConfig.
type Env struct {
	// Server
	HTTPAddr    string        `env:"HTTP_ADDR"        envDefault:":8080"`
	MetricsAddr string        `env:"METRICS_ADDR"     envDefault:":9090"`
	ShutdownIn  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel    string        `env:"LOG_LEVEL"        envDefault:"info"`
	LogFormat   string        `env:"LOG_FORMAT"       envDefault:"json"`

	// Stores. An empty DatabaseURL selects the in-memory account store.
	DatabaseURL   string   `env:"DATABASE_URL"`
	MigrateOnBoot bool     `env:"MIGRATE_ON_BOOT" envDefault:"true"`
	RedisAddrs    []string `env:"REDIS_ADDRS"     envDefault:"localhost:6379" envSeparator:","`
	RedisPassword string   `env:"REDIS_PASSWORD"`
	RedisDB       int      `env:"REDIS_DB"`

	// Audit fan-out. No brokers disables the Kafka sink.
	KafkaBrokers    []string `env:"KAFKA_BROKERS"     envSeparator:","`
	KafkaAuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"authcore.audit"`
	AuditEnabled    bool     `env:"AUDIT_ENABLED"     envDefault:"true"`
	MetricsEnabled  bool     `env:"METRICS_ENABLED"   envDefault:"true"`
	LatencyHistos   bool     `env:"LATENCY_HISTOGRAMS"`

	// Tokens
	JWTSigningMethod  string        `env:"JWT_SIGNING_METHOD"   envDefault:"ed25519"`
	JWTKeyID          string        `env:"JWT_KEY_ID"           envDefault:"k1"`
	JWTPrivateKeyFile string        `env:"JWT_PRIVATE_KEY_FILE"`
	JWTSecret         string        `env:"JWT_SECRET"`
	JWTIssuer         string        `env:"JWT_ISSUER"           envDefault:"authcore"`
	JWTAudience       string        `env:"JWT_AUDIENCE"`
	AccessTTL         time.Duration `env:"ACCESS_TTL"`

	// One-time codes
	OTPPepper      string        `env:"OTP_PEPPER,required,notEmpty"`
	OTPTTL         time.Duration `env:"OTP_TTL"`
	OTPDigits      int           `env:"OTP_DIGITS"`
	OTPMaxAttempts int           `env:"OTP_MAX_ATTEMPTS"`

	// Sessions
	RefreshTTL       time.Duration `env:"REFRESH_TTL"`
	AbsoluteLifetime time.Duration `env:"ABSOLUTE_LIFETIME"`
	RaceGrace        time.Duration `env:"REFRESH_RACE_GRACE"`

	// Passwords
	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH"`
	PasswordMinScore  int `env:"PASSWORD_MIN_SCORE"`
	BcryptCost        int `env:"BCRYPT_COST"`

	// Rate limits, as attempts per window
	LoginLimit      int           `env:"LOGIN_LIMIT"`
	LoginWindow     time.Duration `env:"LOGIN_WINDOW"`
	LoginIPLimit    int           `env:"LOGIN_IP_LIMIT"`
	LoginIPWindow   time.Duration `env:"LOGIN_IP_WINDOW"`
	OTPIssueLimit   int           `env:"OTP_ISSUE_LIMIT"`
	OTPIssueWindow  time.Duration `env:"OTP_ISSUE_WINDOW"`
	OTPVerifyLimit  int           `env:"OTP_VERIFY_LIMIT"`
	OTPVerifyWindow time.Duration `env:"OTP_VERIFY_WINDOW"`
	RefreshLimit    int           `env:"REFRESH_LIMIT"`
	RefreshWindow   time.Duration `env:"REFRESH_WINDOW"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT"`
}

// Load reads .env from the working directory when present, then parses the
// environment. Variables already set win over the file.
func Load() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, fmt.Errorf("envconfig: read .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Env, error) {
	var out Env
	if err := env.ParseWithOptions(&out, env.Options{Prefix: Prefix}); err != nil {
		return Env{}, fmt.Errorf("envconfig: %w", err)
	}
	return out, nil
}

// EngineConfig overlays the environment on authcore.DefaultConfig and
// validates the result.
func (e Env) EngineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()

	cfg.JWT.SigningMethod = e.JWTSigningMethod
	cfg.JWT.KeyID = e.JWTKeyID
	cfg.JWT.Issuer = e.JWTIssuer
	cfg.JWT.Audience = e.JWTAudience
	switch {
	case e.JWTPrivateKeyFile != "":
		key, err := os.ReadFile(e.JWTPrivateKeyFile)
		if err != nil {
			return authcore.Config{}, fmt.Errorf("envconfig: read private key: %w", err)
		}
		cfg.JWT.PrivateKey = key
	case e.JWTSecret != "":
		cfg.JWT.PrivateKey = []byte(e.JWTSecret)
	}
	setDuration(&cfg.JWT.AccessTTL, e.AccessTTL)

	cfg.OTP.Pepper = []byte(e.OTPPepper)
	setDuration(&cfg.OTP.TTL, e.OTPTTL)
	setInt(&cfg.OTP.Digits, e.OTPDigits)
	setInt(&cfg.OTP.MaxAttempts, e.OTPMaxAttempts)

	setDuration(&cfg.Session.RefreshTTL, e.RefreshTTL)
	setDuration(&cfg.Session.AbsoluteLifetime, e.AbsoluteLifetime)
	setDuration(&cfg.Session.RaceGrace, e.RaceGrace)

	setInt(&cfg.Password.MinLength, e.PasswordMinLength)
	setInt(&cfg.Password.MinScore, e.PasswordMinScore)
	setInt(&cfg.Password.BcryptCost, e.BcryptCost)

	setRule(&cfg.RateLimit.Login, e.LoginLimit, e.LoginWindow)
	setRule(&cfg.RateLimit.LoginIP, e.LoginIPLimit, e.LoginIPWindow)
	setRule(&cfg.RateLimit.OTPIssue, e.OTPIssueLimit, e.OTPIssueWindow)
	setRule(&cfg.RateLimit.OTPVerify, e.OTPVerifyLimit, e.OTPVerifyWindow)
	setRule(&cfg.RateLimit.Refresh, e.RefreshLimit, e.RefreshWindow)

	setDuration(&cfg.Store.OperationTimeout, e.StoreTimeout)
	cfg.Audit.Enabled = e.AuditEnabled
	cfg.Metrics.Enabled = e.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = e.MetricsEnabled && e.LatencyHistos

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, fmt.Errorf("envconfig: %w", err)
	}
	return cfg, nil
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setRule(dst *authcore.RateLimitRule, limit int, window time.Duration) {
	setInt(&dst.Limit, limit)
	setDuration(&dst.Window, window)
}
