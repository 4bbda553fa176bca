package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	ErrTokenExpired   = errors.New("jwt: token expired")
	ErrTokenSignature = errors.New("jwt: invalid signature")
	ErrTokenMalformed = errors.New("jwt: malformed token")
)

// Config configures a Manager. PrivateKey signs under KeyID; VerifyKeys maps
// every kid still accepted to its verification key (the HMAC secret for HS256,
// the public key for Ed25519). The signing kid is added to VerifyKeys
// automatically when absent.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	KeyID         string
	PrivateKey    []byte
	PublicKey     []byte
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// AccessClaims is the payload of an access token. Subject holds the account id.
type AccessClaims struct {
	Role         string `json:"role"`
	TokenVersion uint64 `json:"tv"`
	FamilyID     string `json:"fid,omitempty"`
	jwt.RegisteredClaims
}

// AccessInput is what the engine knows when it mints a token.
type AccessInput struct {
	AccountID    string
	Role         string
	TokenVersion uint64
	FamilyID     string
}

type Manager struct {
	cfg     Config
	signKey any
	verify  map[string]any
	now     func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be in [0,2m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = time.Minute
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if cfg.KeyID == "" {
		return nil, errors.New("jwt: key id is required")
	}

	m := &Manager{cfg: cfg, verify: make(map[string]any, len(cfg.VerifyKeys)+1), now: time.Now}

	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("jwt: verify key map contains empty kid")
		}
		key, err := m.verifyKey(raw)
		if err != nil {
			return nil, fmt.Errorf("jwt: verify key %q: %w", kid, err)
		}
		m.verify[kid] = key
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("jwt: hs256 secret must be at least 32 bytes")
		}
		m.signKey = cfg.PrivateKey
		if _, ok := m.verify[cfg.KeyID]; !ok {
			m.verify[cfg.KeyID] = cfg.PrivateKey
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			if _, ok := m.verify[cfg.KeyID]; !ok {
				m.verify[cfg.KeyID] = priv.Public()
			}
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verify[cfg.KeyID] = pub
		}
	default:
		return nil, errors.New("jwt: unsupported signing method")
	}
	if len(m.verify) == 0 {
		return nil, errors.New("jwt: no verification key configured")
	}

	return m, nil
}

// WithClock replaces the time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

// AccessTTL is the lifetime of minted tokens.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// CreateAccess signs a token for in. It fails when the manager holds only
// verification keys.
func (m *Manager) CreateAccess(in AccessInput) (string, time.Time, error) {
	if m.signKey == nil {
		return "", time.Time{}, errors.New("jwt: manager has no signing key")
	}

	now := m.now()
	exp := now.Add(m.cfg.AccessTTL)
	claims := AccessClaims{
		Role:         in.Role,
		TokenVersion: in.TokenVersion,
		FamilyID:     in.FamilyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.AccountID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	token.Header["kid"] = m.cfg.KeyID

	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess verifies signature, algorithm, kid and registered claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience))
	}

	claims := &AccessClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, m.keyFunc)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid || claims.Subject == "" || claims.TokenVersion == 0 {
		return nil, ErrTokenMalformed
	}
	if claims.IssuedAt.Time.After(m.now().Add(m.cfg.MaxFutureIAT)) {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	key, ok := m.verify[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

// classify folds golang-jwt's error tree into the package sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

func (m *Manager) method() jwt.SigningMethod {
	if m.cfg.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) verifyKey(raw []byte) (any, error) {
	if m.cfg.SigningMethod == MethodHS256 {
		if len(raw) == 0 {
			return nil, errors.New("empty hmac key")
		}
		return raw, nil
	}
	return parseEdPublicKey(raw)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return priv, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return pub, nil
}
