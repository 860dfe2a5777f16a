package patient

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
	g := api.Group("/patients")
	g.GET("", h.ListPatients, auth.DoctorOrAdmin())
	g.POST("", h.CreatePatient, auth.DoctorOrAdmin())
	g.GET("/:id", h.GetPatient, auth.DoctorOrAdmin())
	g.PUT("/:id", h.UpdatePatient, auth.DoctorOrAdmin())
	g.DELETE("/:id", h.DeletePatient, auth.AdminOnly())
	g.POST("/:id/restore", h.RestorePatient, auth.AdminOnly())
}

func (h *Handler) respond(c echo.Context, status int, p *Patient) error {
	return c.JSON(status, NewResponse(p, h.svc.now()))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in Input
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), httpx.Tenant(c), in)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	q, pg, err := httpx.ListQuery(c)
	if err != nil {
		return err
	}
	f := Filter{Query: q, Gender: c.QueryParam("gender")}
	if f.BornFrom, err = httpx.QueryTime(c, "bornFrom"); err != nil {
		return err
	}
	if f.BornTo, err = httpx.QueryTime(c, "bornTo"); err != nil {
		return err
	}
	if f.CreatedFrom, err = httpx.QueryTime(c, "createdFrom"); err != nil {
		return err
	}
	if f.CreatedTo, err = httpx.QueryTime(c, "createdTo"); err != nil {
		return err
	}

	items, total, err := h.svc.SearchPatients(c.Request().Context(), httpx.Tenant(c), f)
	if err != nil {
		return err
	}
	now := h.svc.now()
	out := make([]Response, len(items))
	for i, p := range items {
		out[i] = NewResponse(p, now)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), httpx.Tenant(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RestorePatient(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.RestorePatient(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, p)
}
