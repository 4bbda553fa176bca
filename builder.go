package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/internal"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/session"
)

// Builder assembles an Engine. A Builder can be used for one Build only.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  account.Store
	roles     *permission.RoleTable
	logger    *zap.Logger
	notifier  Notifier
	auditSink AuditSink
	now       func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for OTP records, refresh families and rate
// limit counters. Cluster clients work because every multi-key script keeps
// its keys under one hash tag.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store account.Store) *Builder {
	b.accounts = store
	return b
}

// WithRoleTable replaces the default permission table. It must grant a mask
// to every built-in role.
func (b *Builder) WithRoleTable(roles *permission.RoleTable) *Builder {
	b.roles = roles
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the time source for access tokens and audit stamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	// -------- ROLES --------
	roles := b.roles
	if roles == nil {
		roles = permission.NewDefaultRoleTable()
	}
	for _, r := range []permission.Role{permission.RoleUser, permission.RoleAdmin, permission.RoleManager} {
		if _, ok := roles.Mask(r); !ok {
			return nil, fmt.Errorf("role table has no mask for %q", r)
		}
	}

	// -------- PASSWORDS --------
	argon, err := password.NewArgon2(cfg.argon2Config())
	if err != nil {
		return nil, err
	}
	var hasher password.Hasher = argon
	if cfg.Password.BcryptCost != 0 {
		legacy, err := password.NewBcrypt(cfg.Password.BcryptCost)
		if err != nil {
			return nil, err
		}
		if hasher, err = password.NewMulti(argon, legacy); err != nil {
			return nil, err
		}
	}
	filler, err := internal.NewOTP(10)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(filler)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	now := b.now
	if now == nil {
		now = time.Now
	}
	tokens, err := jwt.NewManager(cfg.jwtConfig())
	if err != nil {
		return nil, err
	}
	if b.now != nil {
		tokens = tokens.WithClock(now)
	}

	// -------- REDIS STORES --------
	otps, err := otp.NewStore(b.redis, cfg.OTP.RedisPrefix, cfg.otpConfig())
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.sessionConfig())
	if err != nil {
		return nil, err
	}
	limiter, err := rate.New(b.redis, cfg.RateLimit.RedisPrefix, cfg.ratePolicies())
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	engine := &Engine{
		config:    cfg,
		accounts:  b.accounts,
		roles:     roles,
		sessions:  sessions,
		otps:      otps,
		limiter:   limiter,
		hasher:    hasher,
		policy:    cfg.passwordPolicy(),
		tokens:    tokens,
		logger:    logger.Named("authcore"),
		notifier:  notifier,
		dummyHash: dummyHash,
		now:       now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:         cfg.Audit.Enabled,
		BufferSize:      cfg.Audit.BufferSize,
		DropIfFull:      cfg.Audit.DropIfFull,
		DeliveryTimeout: cfg.Audit.DeliveryTimeout,
	}, b.auditSink)
	engine.metrics = internalmetrics.New(cfg.Metrics.Enabled, cfg.Metrics.EnableLatencyHistograms)

	b.built = true

	return engine, nil
}
