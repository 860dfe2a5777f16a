package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_RendersErrorsAndLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	e.HTTPErrorHandler = ProblemHandler(logger, false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("tenant_id", "north")

	err := Logger(logger)(func(c echo.Context) error {
		return apperr.New(apperr.PatientNotFound, "patient not found")
	})(c)
	if err != nil {
		t.Fatalf("logger should have handled the error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 written, got %d", rec.Code)
	}
	line := buf.String()
	if !strings.Contains(line, `"status":404`) || !strings.Contains(line, `"tenant":"north"`) {
		t.Errorf("unexpected log line: %s", line)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("test panic")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	if httpErr.Internal == nil || !strings.Contains(httpErr.Internal.Error(), "test panic") {
		t.Errorf("internal = %v, want the panic value", httpErr.Internal)
	}
	if p := ProblemFromError(err, false); strings.Contains(p.Detail, "test panic") {
		t.Errorf("panic value leaked into detail %q", p.Detail)
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRequestTimeout(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequestTimeout(20*time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}
}

func TestRequestTimeout_FastHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/fast", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e := echo.New()

	call := func(tenant string) error {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set("tenant_id", tenant)
		return h(c)
	}

	for i := 0; i < 2; i++ {
		if err := call("north"); err != nil {
			t.Fatalf("request %d within burst failed: %v", i, err)
		}
	}
	err := call("north")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if err := call("south"); err != nil {
		t.Errorf("another tenant has its own bucket: %v", err)
	}
}

func TestLimiterStore_EvictsIdle(t *testing.T) {
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.get("a")
	s.get("b")
	now = now.Add(2 * time.Minute)
	s.get("c")
	if s.size() != 1 {
		t.Errorf("expected idle clients evicted, have %d", s.size())
	}
}

func TestAudit_RecordsEntry(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/patients/5b0f8e3c-8f7e-4a6b-9c55-1f2d3e4a5b6c", nil)
	req = req.WithContext(auth.WithClaims(context.Background(), &auth.Claims{Role: auth.RoleAdministrator}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("tenant_id", "north")
	c.Set("request_id", "req-123")

	var got AuditEntry
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		got = entry
		return nil
	})

	err := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Resource != "patients" || got.ResourceID != "5b0f8e3c-8f7e-4a6b-9c55-1f2d3e4a5b6c" {
		t.Errorf("unexpected resource: %+v", got)
	}
	if got.Action != "delete" || got.TenantID != "north" || got.Role != auth.RoleAdministrator {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", got.StatusCode)
	}
}

func TestAudit_SkipsNonAPI(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	called := false
	recorder := AuditRecorderFunc(func(AuditEntry) error {
		called = true
		return nil
	})
	_ = Audit(zerolog.Nop(), recorder)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if called {
		t.Error("health checks must not be audited")
	}
}

func TestMethodToAction(t *testing.T) {
	tests := []struct {
		method, id, want string
	}{
		{http.MethodGet, "", "search"},
		{http.MethodGet, "x", "read"},
		{http.MethodPost, "", "create"},
		{http.MethodPut, "x", "update"},
		{http.MethodDelete, "x", "delete"},
	}
	for _, tt := range tests {
		if got := methodToAction(tt.method, tt.id); got != tt.want {
			t.Errorf("methodToAction(%s, %q) = %s, want %s", tt.method, tt.id, got, tt.want)
		}
	}
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) Problem {
	t.Helper()
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, ProblemContentType) {
		t.Errorf("expected problem content type, got %q", ct)
	}
	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	return p
}

func TestProblemHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expose     bool
		wantStatus int
		wantCode   string
		wantDetail string
	}{
		{
			name:       "business failure",
			err:        fmt.Errorf("schedule: %w", apperr.New(apperr.DoctorUnavailable, "doctor already booked")),
			wantStatus: http.StatusConflict,
			wantCode:   "DOCTOR_UNAVAILABLE",
			wantDetail: "doctor already booked",
		},
		{
			name:       "validation failure",
			err:        apperr.New(apperr.InvalidTimeRange, "start must precede end"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_TIME_RANGE",
			wantDetail: "start must precede end",
		},
		{
			name:       "echo error",
			err:        echo.NewHTTPError(http.StatusBadRequest, "invalid id"),
			wantStatus: http.StatusBadRequest,
			wantDetail: "invalid id",
		},
		{
			name:       "unexpected error hidden",
			err:        errors.New("connection reset by peer"),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "An unexpected error occurred.",
		},
		{
			name:       "unexpected error exposed",
			err:        errors.New("connection reset by peer"),
			expose:     true,
			wantStatus: http.StatusInternalServerError,
			wantDetail: "connection reset by peer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.Set("request_id", "req-1")

			ProblemHandler(zerolog.Nop(), tt.expose)(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			p := decodeProblem(t, rec)
			if p.Status != tt.wantStatus || p.Code != tt.wantCode || p.Detail != tt.wantDetail {
				t.Errorf("unexpected problem: %+v", p)
			}
			if p.Instance != "/api/v1/appointments" || p.RequestID != "req-1" {
				t.Errorf("expected instance and request id, got %+v", p)
			}
			if p.Type == "" || p.Title == "" {
				t.Errorf("type and title are required, got %+v", p)
			}
		})
	}
}

func TestProblemFromError_CodeType(t *testing.T) {
	p := ProblemFromError(apperr.New(apperr.PatientNotFound, "x"), false)
	if p.Type != "https://clinic.local/problems/patient-not-found" {
		t.Errorf("unexpected type %s", p.Type)
	}
	if p.Title != "Not Found" {
		t.Errorf("unexpected title %s", p.Title)
	}
}
