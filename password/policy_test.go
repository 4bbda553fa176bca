package password

import (
	"errors"
	"strings"
	"testing"
)

func TestPolicyLength(t *testing.T) {
	p := DefaultPolicy()

	if err := p.Check("Pwd123!"); err != nil {
		t.Fatalf("expected default policy to accept Pwd123!: %v", err)
	}
	if err := p.Check("abc"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if err := p.Check(strings.Repeat("a", 300)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	if err := p.Check("        "); !errors.Is(err, ErrTooWeak) {
		t.Fatalf("expected blank password to be weak, got %v", err)
	}
}

func TestPolicyStrengthScore(t *testing.T) {
	p := DefaultPolicy()
	p.MinScore = 3

	if err := p.Check("password1"); !errors.Is(err, ErrTooWeak) {
		t.Fatalf("expected common password to be weak, got %v", err)
	}
	if err := p.Check("correct horse battery staple 91!"); err != nil {
		t.Fatalf("expected passphrase to pass: %v", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := (Policy{MinLength: 0, MaxLength: 10}).Validate(); err == nil {
		t.Fatal("expected min length 0 to fail")
	}
	if err := (Policy{MinLength: 8, MaxLength: 4}).Validate(); err == nil {
		t.Fatal("expected max < min to fail")
	}
	if err := (Policy{MinLength: 8, MaxLength: 64, MinScore: 5}).Validate(); err == nil {
		t.Fatal("expected score 5 to fail")
	}
}
