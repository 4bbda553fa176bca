package password

import (
	"errors"
	"strings"
)

// ErrUnsupportedHash is returned when no registered scheme recognises a stored hash.
var ErrUnsupportedHash = errors.New("password: unsupported hash format")

// Hasher is implemented by every password scheme.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

type scheme interface {
	Hasher
	recognises(encoded string) bool
}

// Multi hashes with a primary scheme and verifies against any known one.
type Multi struct {
	primary scheme
	legacy  []scheme
}

// NewMulti builds a Multi. Secondary hashers are only used for verification.
func NewMulti(primary Hasher, secondary ...Hasher) (*Multi, error) {
	p, ok := primary.(scheme)
	if !ok {
		return nil, errors.New("password: primary hasher must be *Argon2 or *Bcrypt")
	}
	m := &Multi{primary: p}
	for _, h := range secondary {
		s, ok := h.(scheme)
		if !ok {
			return nil, errors.New("password: secondary hasher must be *Argon2 or *Bcrypt")
		}
		m.legacy = append(m.legacy, s)
	}
	return m, nil
}

func (m *Multi) Hash(plaintext string) (string, error) {
	return m.primary.Hash(plaintext)
}

func (m *Multi) Verify(plaintext, encoded string) (bool, error) {
	s := m.lookup(encoded)
	if s == nil {
		return false, ErrUnsupportedHash
	}
	return s.Verify(plaintext, encoded)
}

// NeedsRehash is true for hashes made by a secondary scheme or by the primary
// with weaker parameters.
func (m *Multi) NeedsRehash(encoded string) bool {
	if !m.primary.recognises(encoded) {
		return true
	}
	return m.primary.NeedsRehash(encoded)
}

func (m *Multi) lookup(encoded string) scheme {
	if m.primary.recognises(encoded) {
		return m.primary
	}
	for _, s := range m.legacy {
		if s.recognises(encoded) {
			return s
		}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
