package clinical

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
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

func TestHandler_CreateAndList(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	body := `{"patient_id":"` + f.patient.String() + `","doctor_id":"` + f.doctor.String() +
		`","visit_reason":"Back pain","symptoms":[{"name":"Pain","severity":"severe"}]}`

	c, rec := newContext(e, http.MethodPost, "/", body)
	if err := h.CreateConsultation(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, rec = newContext(e, http.MethodGet, "/?patientId="+f.patient.String(), "")
	if err := h.ListConsultations(c); err != nil {
		t.Fatal(err)
	}
	var page struct {
		Items []Consultation `json:"items"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Items[0].Symptoms[0].Severity != SeveritySevere {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestHandler_GetConsultation_NotFound(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	c, _ := newContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("0b8f0c53-3c0e-4d7a-a6a2-3f1d8c9e0a11")
	if err := h.GetConsultation(c); !apperr.HasCode(err, apperr.ConsultationNotFound) {
		t.Errorf("expected CONSULTATION_NOT_FOUND, got %v", err)
	}
}

func TestHandler_RestoreConsultation(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	created, err := f.svc.CreateConsultation(context.Background(), "north", f.input())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteConsultation(context.Background(), "north", created.ID); err != nil {
		t.Fatal(err)
	}

	c, rec := newContext(e, http.MethodPost, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.RestoreConsultation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
