package clinical

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/httpx"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/consultations")
	g.GET("", h.ListConsultations, auth.DoctorOrAdmin())
	g.POST("", h.CreateConsultation, auth.DoctorOrAdmin())
	g.GET("/:id", h.GetConsultation, auth.DoctorOrAdmin())
	g.PUT("/:id", h.UpdateConsultation, auth.DoctorOrAdmin())
	g.DELETE("/:id", h.DeleteConsultation, auth.AdminOnly())
	g.POST("/:id/restore", h.RestoreConsultation, auth.AdminOnly())
}

func (h *Handler) CreateConsultation(c echo.Context) error {
	var in Input
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	out, err := h.svc.CreateConsultation(c.Request().Context(), httpx.Tenant(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetConsultation(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	q, pg, err := httpx.ListQuery(c)
	if err != nil {
		return err
	}
	f := Filter{Query: q}
	if f.PatientID, err = httpx.QueryUUID(c, "patientId"); err != nil {
		return err
	}
	if f.DoctorID, err = httpx.QueryUUID(c, "doctorId"); err != nil {
		return err
	}
	if f.From, err = httpx.QueryTime(c, "from"); err != nil {
		return err
	}
	if f.To, err = httpx.QueryTime(c, "to"); err != nil {
		return err
	}
	items, total, err := h.svc.SearchConsultations(c.Request().Context(), httpx.Tenant(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateConsultation(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	out, err := h.svc.UpdateConsultation(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteConsultation(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteConsultation(c.Request().Context(), httpx.Tenant(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RestoreConsultation(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.RestoreConsultation(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}
