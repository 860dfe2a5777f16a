package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

func newContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req = req.WithContext(db.WithTenant(req.Context(), "north"))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// signIn attaches claims for user to c, as JWTMiddleware would.
func signIn(c echo.Context, u *User, role string) {
	claims := &auth.Claims{TenantID: u.TenantID, Role: role}
	claims.Subject = u.ID.String()
	c.SetRequest(c.Request().WithContext(auth.WithClaims(c.Request().Context(), claims)))
}

func TestHandler_CreateUser_HidesSecrets(t *testing.T) {
	env := newTestEnv(t)
	h, e := NewHandler(env.svc), echo.New()
	c, rec := newContext(e, http.MethodPost, "/", `{"first_name":"Greg","last_name":"House","email":"greg@clinic.test","role_id":"`+DoctorRoleID.String()+`"}`)

	if err := h.CreateUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, secret := range []string{"password_hash", "PasswordHash", "SetupTokenDigest", env.setupToken(t)} {
		if strings.Contains(body, secret) {
			t.Errorf("response leaks %q: %s", secret, body)
		}
	}
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "north", "greg@clinic.test", "s3cretpass")
	h, e := NewHandler(env.svc), echo.New()

	c, rec := newContext(e, http.MethodPost, "/", `{"email":"greg@clinic.test","password":"s3cretpass"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["access_token"] == "" || body["token_type"] != "Bearer" {
		t.Errorf("unexpected login body %v", body)
	}

	c, _ = newContext(e, http.MethodPost, "/", `{"email":"greg@clinic.test","password":"nope"}`)
	if err := h.Login(c); !apperr.HasCode(err, apperr.InvalidCredentials) {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", err)
	}
}

func TestHandler_ValidateSetupToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "north", "greg@clinic.test")
	h, e := NewHandler(env.svc), echo.New()

	c, rec := newContext(e, http.MethodGet, "/?token="+env.setupToken(t), "")
	if err := h.ValidateSetupToken(c); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "greg@clinic.test") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, _ = newContext(e, http.MethodGet, "/", "")
	if err := h.ValidateSetupToken(c); !apperr.HasCode(err, apperr.InvalidSetupToken) {
		t.Errorf("expected INVALID_SETUP_TOKEN, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	env := newTestEnv(t)
	u := env.register(t, "north", "greg@clinic.test")
	h, e := NewHandler(env.svc), echo.New()

	c, _ := newContext(e, http.MethodGet, "/", "")
	if err := h.Me(c); err == nil {
		t.Fatal("expected an error without claims")
	}

	c, rec := newContext(e, http.MethodGet, "/", "")
	signIn(c, u, auth.RoleDoctor)
	if err := h.Me(c); err != nil {
		t.Fatalf("me: %v", err)
	}
	if !strings.Contains(rec.Body.String(), u.ID.String()) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_DeleteUser_Self(t *testing.T) {
	env := newTestEnv(t)
	u := env.register(t, "north", "greg@clinic.test")
	h, e := NewHandler(env.svc), echo.New()

	c, _ := newContext(e, http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(u.ID.String())
	signIn(c, u, auth.RoleAdministrator)
	if err := h.DeleteUser(c); !apperr.HasCode(err, apperr.ValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestHandler_DeleteRole_Protected(t *testing.T) {
	env := newTestEnv(t)
	h, e := NewHandler(env.svc), echo.New()
	c, _ := newContext(e, http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(PatientRoleID.String())
	if err := h.DeleteRole(c); !apperr.HasCode(err, apperr.RoleProtected) {
		t.Errorf("expected ROLE_PROTECTED, got %v", err)
	}
}

func TestHandler_ListRoles(t *testing.T) {
	env := newTestEnv(t)
	h, e := NewHandler(env.svc), echo.New()
	c, rec := newContext(e, http.MethodGet, "/?sort=name", "")
	if err := h.ListRoles(c); err != nil {
		t.Fatal(err)
	}
	var env2 struct {
		Items []Role `json:"items"`
		Total int    `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env2); err != nil {
		t.Fatal(err)
	}
	if env2.Total != 3 || env2.Items[0].Name != auth.RoleAdministrator {
		t.Errorf("unexpected roles %+v", env2)
	}
}

func TestRoutes_RequireRoles(t *testing.T) {
	env := newTestEnv(t)
	e := echo.New()
	NewHandler(env.svc).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without identity, got %d", rec.Code)
	}
}
