package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ID16 is a 128-bit random identifier used for refresh families and session rows.
type ID16 [16]byte

const (
	refreshSecretSize   = 32
	refreshTokenRawSize = 16 + 16 + 8 + refreshSecretSize
)

var errRefreshTokenSize = errors.New("invalid refresh token size")

// RefreshToken is the decoded form of an opaque refresh credential.
type RefreshToken struct {
	FamilyID  string
	SessionID string
	Sequence  uint64
	Secret    [refreshSecretSize]byte
}

func NewID16() (ID16, error) {
	var id ID16
	_, err := rand.Read(id[:])
	return id, err
}

func (id ID16) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func ParseID16(s string) (ID16, error) {
	var id ID16

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid id size")
	}

	copy(id[:], raw)
	return id, nil
}

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// NextRefreshSecret derives the successor secret of a rotation. The derivation
// is deterministic so a client racing its own rotation receives the same token.
func NextRefreshSecret(chainKey []byte, secret [refreshSecretSize]byte) [refreshSecretSize]byte {
	mac := hmac.New(sha256.New, chainKey)
	mac.Write(secret[:])

	var next [refreshSecretSize]byte
	copy(next[:], mac.Sum(nil))
	return next
}

// EncodeRefreshToken lays out family|session|sequence|secret and encodes it
// as unpadded base64url.
func EncodeRefreshToken(tok RefreshToken) (string, error) {
	fid, err := ParseID16(tok.FamilyID)
	if err != nil {
		return "", fmt.Errorf("family id: %w", err)
	}
	sid, err := ParseID16(tok.SessionID)
	if err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[0:16], fid[:])
	copy(raw[16:32], sid[:])
	binary.BigEndian.PutUint64(raw[32:40], tok.Sequence)
	copy(raw[40:], tok.Secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeRefreshToken(token string) (RefreshToken, error) {
	var tok RefreshToken

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return tok, err
	}
	if len(raw) != refreshTokenRawSize {
		return tok, errRefreshTokenSize
	}

	var fid, sid ID16
	copy(fid[:], raw[0:16])
	copy(sid[:], raw[16:32])

	tok.FamilyID = fid.String()
	tok.SessionID = sid.String()
	tok.Sequence = binary.BigEndian.Uint64(raw[32:40])
	copy(tok.Secret[:], raw[40:])
	return tok, nil
}

// NewOTP draws each digit uniformly from crypto/rand.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// NewKey returns n random bytes.
func NewKey(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
