package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/security"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("very-secure-password", cfg)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword returned empty string")
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if _, err := security.VerifyPassword("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestRandomCode(t *testing.T) {
	code := security.RandomCode(8)
	if len(code) != 8 {
		t.Fatalf("expected 8 chars, got %q", code)
	}
	if strings.ContainsAny(code, "O0I1") {
		t.Fatalf("look-alike rune in %q", code)
	}
	if security.RandomCode(0) != "" {
		t.Fatal("expected empty code for zero length")
	}
}

func TestVerifyPasswordRejectsTamperedParams(t *testing.T) {
	hash, err := security.HashPassword("pw", config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1})
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$") {
		t.Fatalf("unexpected hash prefix %q", hash)
	}

	for name, bad := range map[string]string{
		"wrong version": strings.Replace(hash, "v=19", "v=16", 1),
		"zero memory":   strings.Replace(hash, "m=64", "m=0", 1),
		"wrong algo":    strings.Replace(hash, "argon2id", "argon2i", 1),
		"no leading $":  hash[1:],
	} {
		if _, err := security.VerifyPassword("pw", bad); !errors.Is(err, security.ErrInvalidHash) {
			t.Fatalf("%s: expected ErrInvalidHash, got %v", name, err)
		}
	}
	if _, err := security.HashPassword("", config.PasswordConfig{}); !errors.Is(err, security.ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestSecretsEqual(t *testing.T) {
	if !security.SecretsEqual("cron-secret", "cron-secret") {
		t.Fatal("expected equal secrets to match")
	}
	if security.SecretsEqual("cron-secre", "cron-secret") {
		t.Fatal("expected prefix not to match")
	}
	if security.SecretsEqual("", "") {
		t.Fatal("empty secrets never match")
	}
}
