package patient

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestPatient_Age(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		dob  *time.Time
		want *int
	}{
		{"unknown", nil, nil},
		{"birthday passed", date(1990, 1, 10), intp(35)},
		{"birthday today", date(1990, 6, 15), intp(35)},
		{"birthday tomorrow", date(1990, 6, 16), intp(34)},
		{"later month", date(2000, 12, 1), intp(24)},
		{"newborn", date(2025, 6, 1), intp(0)},
		{"future", date(2026, 1, 1), intp(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Patient{DateOfBirth: tt.dob}
			got := p.Age(now)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Age() = %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("Age() = %d, want %d", *got, *tt.want)
			}
		})
	}
}

func intp(i int) *int { return &i }

func TestPatient_FullName(t *testing.T) {
	cases := map[string]Patient{
		"Ana Souza": {FirstName: "Ana", LastName: "Souza"},
		"Ana":       {FirstName: "Ana"},
		"Souza":     {LastName: "Souza"},
	}
	for want, p := range cases {
		if got := p.FullName(); got != want {
			t.Errorf("FullName() = %q, want %q", got, want)
		}
	}
}

func TestResponse_JSON(t *testing.T) {
	p := &Patient{FirstName: "Ana", LastName: "Souza", DateOfBirth: date(1990, 1, 1)}
	b, err := json.Marshal(NewResponse(p, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"first_name":"Ana"`, `"age":35`, `"lifecycle":{"state":"active"}`, `"tenant_id":""`} {
		if !strings.Contains(s, want) {
			t.Errorf("json missing %s: %s", want, s)
		}
	}
}

func TestClonePatient_DoesNotAlias(t *testing.T) {
	p := &Patient{DateOfBirth: date(1990, 1, 1)}
	c := clonePatient(p)
	*c.DateOfBirth = time.Time{}
	if p.DateOfBirth.IsZero() {
		t.Error("clone shares date_of_birth with original")
	}
}
