package validate

import (
	"strings"
	"testing"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func TestCollector_NoIssues(t *testing.T) {
	v := New()
	v.Required("name", "Ana")
	v.MaxLen("name", "Ana", 3)
	v.Email("email", "")
	v.OneOf("gender", "", map[string]bool{"female": true})
	v.Currency("currency", "USD")
	if err := v.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCollector_Issues(t *testing.T) {
	v := New()
	v.Required("first_name", "  ")
	v.MaxLen("last_name", "ÁÉÍÓÚx", 5)
	v.Email("email", "not-an-email")
	v.OneOf("gender", "robot", map[string]bool{"female": true})
	v.Currency("currency", "usd")

	if got := len(v.Issues()); got != 5 {
		t.Fatalf("expected 5 issues, got %d: %+v", got, v.Issues())
	}
	err := v.Err()
	if !apperr.HasCode(err, apperr.ValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	if !strings.Contains(err.Error(), "first_name is required") {
		t.Errorf("message missing field: %v", err)
	}
}

func TestIsEmail(t *testing.T) {
	cases := map[string]bool{
		"ana@north.test":       true,
		"Ana <ana@north.test>": false,
		"ana@localhost":        false,
		"ana":                  false,
		"ana.maria@clinic.org": true,
	}
	for in, want := range cases {
		if got := IsEmail(in); got != want {
			t.Errorf("IsEmail(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ana@North.Test "); got != "ana@north.test" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
