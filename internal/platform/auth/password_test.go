package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" || !strings.HasPrefix(hash, "$2") {
		t.Errorf("unexpected hash %q", hash)
	}
	if !h.Verify(hash, "s3cret-pass") {
		t.Error("expected matching password to verify")
	}
	if h.Verify(hash, "wrong-pass1") {
		t.Error("expected wrong password to fail")
	}
	if h.Verify("", "") {
		t.Error("empty hash must never verify")
	}
}

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	if h := NewPasswordHasher(99); h.cost != bcrypt.DefaultCost {
		t.Errorf("expected default cost, got %d", h.cost)
	}
}

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"abc12345", true},
		{"Passw0rd!", true},
		{"short1", false},
		{"onlyletters", false},
		{"1234567890", false},
		{"", false},
	}
	for _, tt := range tests {
		err := CheckPasswordStrength(tt.password)
		if (err == nil) != tt.ok {
			t.Errorf("CheckPasswordStrength(%q) = %v, want ok=%v", tt.password, err, tt.ok)
		}
	}
}

func TestSetupToken(t *testing.T) {
	token, digest, err := NewSetupToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(token))
	}
	if digest == token {
		t.Error("digest must differ from the token")
	}
	if DigestSetupToken(token) != digest {
		t.Error("digest must be deterministic")
	}

	other, _, _ := NewSetupToken()
	if other == token {
		t.Error("tokens must be random")
	}
}

func TestRandomPassword(t *testing.T) {
	pw, err := RandomPassword()
	if err != nil {
		t.Fatalf("random password: %v", err)
	}
	if err := CheckPasswordStrength(pw); err != nil {
		t.Errorf("generated password %q fails policy: %v", pw, err)
	}
}
