package password

import (
	"strings"
	"testing"
)

func testArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestArgon2HashAndVerify(t *testing.T) {
	h, err := NewArgon2(testArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}

	encoded, err := h.Hash("Pwd123!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("Pwd123!", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("Pwd123?", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestArgon2SaltIsRandom(t *testing.T) {
	h, _ := NewArgon2(testArgon2Config())
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestArgon2RejectsWeakConfig(t *testing.T) {
	cfg := testArgon2Config()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected low memory to be rejected")
	}
	cfg = testArgon2Config()
	cfg.SaltLength = 8
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected short salt to be rejected")
	}
}

func TestArgon2VerifyMalformed(t *testing.T) {
	h, _ := NewArgon2(testArgon2Config())
	cases := []string{
		"",
		"$argon2id$v=19$m=8192,t=1,p=1$onlysalt",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
	}
	for _, c := range cases {
		if ok, err := h.Verify("x", c); err == nil || ok {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestArgon2NeedsRehash(t *testing.T) {
	weak, _ := NewArgon2(testArgon2Config())
	encoded, _ := weak.Hash("upgrade-me")

	stronger := testArgon2Config()
	stronger.Time = 2
	strong, _ := NewArgon2(stronger)

	if weak.NeedsRehash(encoded) {
		t.Fatal("hash made with current params should not need rehash")
	}
	if !strong.NeedsRehash(encoded) {
		t.Fatal("hash made with weaker params should need rehash")
	}
	if !strong.NeedsRehash("garbage") {
		t.Fatal("unparseable hash should need rehash")
	}
}
