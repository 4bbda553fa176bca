package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
)

var (
	ErrTooShort = errors.New("password: too short")
	ErrTooLong  = errors.New("password: too long")
	ErrTooWeak  = errors.New("password: too weak")
)

// Policy is checked before a password is hashed. MinScore is a zxcvbn score in
// [0,4]; zero disables the strength estimate.
type Policy struct {
	MinLength int
	MaxLength int
	MinScore  int
}

func DefaultPolicy() Policy {
	return Policy{MinLength: 6, MaxLength: 256}
}

func (p Policy) Validate() error {
	if p.MinLength < 1 {
		return errors.New("password: policy min length must be >= 1")
	}
	if p.MaxLength < p.MinLength {
		return errors.New("password: policy max length must be >= min length")
	}
	if p.MinScore < 0 || p.MinScore > 4 {
		return errors.New("password: policy min score must be in [0,4]")
	}
	return nil
}

// Check validates plaintext. userInputs (email, name) are fed to zxcvbn as
// dictionary words so passwords derived from them score lower.
func (p Policy) Check(plaintext string, userInputs ...string) error {
	n := utf8.RuneCountInString(plaintext)
	if n < p.MinLength {
		return fmt.Errorf("%w: minimum %d characters", ErrTooShort, p.MinLength)
	}
	// bytes, not runes: the hash input is the raw byte string
	if p.MaxLength > 0 && len(plaintext) > p.MaxLength {
		return fmt.Errorf("%w: maximum %d bytes", ErrTooLong, p.MaxLength)
	}
	if strings.TrimSpace(plaintext) == "" {
		return fmt.Errorf("%w: blank", ErrTooWeak)
	}

	if p.MinScore > 0 {
		result := zxcvbn.PasswordStrength(plaintext, userInputs)
		if result.Score < p.MinScore {
			return fmt.Errorf("%w: score %d below %d", ErrTooWeak, result.Score, p.MinScore)
		}
	}
	return nil
}
