package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/db"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newAuthContext(tenant, header string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	if tenant != "" {
		req = req.WithContext(db.WithTenant(req.Context(), tenant))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	c, _ := newAuthContext("north", "")
	err := JWTMiddleware(newTestTokens(time.Now()), MiddlewareOptions{})(okHandler)(c)
	expectHTTPError(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer abc.def.ghi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newAuthContext("north", tt.header)
			err := JWTMiddleware(newTestTokens(time.Now()), MiddlewareOptions{})(okHandler)(c)
			expectHTTPError(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokens := newTestTokens(time.Now())
	id := testIdentity()
	issued, _ := tokens.Issue(id)

	c, rec := newAuthContext("north", "Bearer "+issued.Token)
	var gotUser, gotRole string
	h := JWTMiddleware(tokens, MiddlewareOptions{})(func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		gotRole = RoleFromContext(c.Request().Context())
		if ClaimsFromContext(c.Request().Context()) == nil {
			t.Error("expected claims in context")
		}
		return okHandler(c)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if gotUser != id.UserID.String() || gotRole != RoleDoctor {
		t.Errorf("unexpected principal %s/%s", gotUser, gotRole)
	}
}

func TestJWTMiddleware_TenantMismatch(t *testing.T) {
	tokens := newTestTokens(time.Now())
	issued, _ := tokens.Issue(testIdentity())

	c, _ := newAuthContext("south", "Bearer "+issued.Token)
	err := JWTMiddleware(tokens, MiddlewareOptions{})(okHandler)(c)
	expectHTTPError(t, err, http.StatusForbidden)
}

func TestJWTMiddleware_Revoked(t *testing.T) {
	tokens := newTestTokens(time.Now())
	issued, _ := tokens.Issue(testIdentity())
	revocations := NewMemoryRevocations()
	_ = revocations.Revoke(context.Background(), issued.JTI, issued.ExpiresAt)

	c, _ := newAuthContext("north", "Bearer "+issued.Token)
	err := JWTMiddleware(tokens, MiddlewareOptions{Revocations: revocations})(okHandler)(c)
	expectHTTPError(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/auth/login")

	err := JWTMiddleware(newTestTokens(time.Now()), MiddlewareOptions{Skipper: AuthSkipper})(okHandler)(c)
	if err != nil {
		t.Fatalf("public path should skip auth, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") || !IsPublicPath("/api/v1/auth/password-setup/complete") {
		t.Error("expected public paths")
	}
	if IsPublicPath("/api/v1/users") || IsPublicPath("/api/v1/auth/me") {
		t.Error("protected paths must not be public")
	}
}
