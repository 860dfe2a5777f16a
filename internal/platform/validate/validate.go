// Package validate collects field problems and reports them as one
// VALIDATION_FAILED error.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/clinic/clinic/internal/platform/apperr"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Issue is one failed check.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates issues in the order checks run.
type Collector struct {
	issues []Issue
}

func New() *Collector { return &Collector{} }

func (c *Collector) Add(field, format string, args ...interface{}) {
	c.issues = append(c.issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Check adds an issue when ok is false.
func (c *Collector) Check(ok bool, field, format string, args ...interface{}) {
	if !ok {
		c.Add(field, format, args...)
	}
}

// Required rejects blank strings.
func (c *Collector) Required(field, value string) {
	c.Check(strings.TrimSpace(value) != "", field, "is required")
}

// MaxLen counts runes, not bytes.
func (c *Collector) MaxLen(field, value string, n int) {
	c.Check(utf8.RuneCountInString(value) <= n, field, "must be at most %d characters", n)
}

// Email accepts a bare address; blank values are left to Required.
func (c *Collector) Email(field, value string) {
	if value == "" {
		return
	}
	c.Check(IsEmail(value), field, "must be a valid email address")
}

// OneOf accepts blank values and any of allowed.
func (c *Collector) OneOf(field, value string, allowed map[string]bool) {
	if value == "" {
		return
	}
	c.Check(allowed[value], field, "has an unsupported value %q", value)
}

// Currency requires a three-letter upper-case code.
func (c *Collector) Currency(field, value string) {
	c.Check(currencyPattern.MatchString(value), field, "must be a 3-letter ISO 4217 code")
}

func (c *Collector) Issues() []Issue { return c.issues }

// Err returns nil when every check passed.
func (c *Collector) Err() error {
	if len(c.issues) == 0 {
		return nil
	}
	parts := make([]string, len(c.issues))
	for i, is := range c.issues {
		parts[i] = is.Field + " " + is.Message
	}
	return apperr.Validation("%s", strings.Join(parts, "; "))
}

// IsEmail reports whether s is a plain address without a display name.
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
