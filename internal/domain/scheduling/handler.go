package scheduling

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
	g := api.Group("/appointments")
	g.GET("", h.ListAppointments, auth.DoctorOrAdmin())
	g.POST("", h.ScheduleAppointment, auth.DoctorOrAdmin())
	g.GET("/:id", h.GetAppointment, auth.DoctorOrAdmin())
	g.PUT("/:id", h.UpdateAppointment, auth.DoctorOrAdmin())
	g.POST("/:id/reschedule", h.RescheduleAppointment, auth.DoctorOrAdmin())
	g.POST("/:id/status", h.ChangeStatus, auth.DoctorOrAdmin())
	g.DELETE("/:id", h.DeleteAppointment, auth.AdminOnly())
	g.POST("/:id/restore", h.RestoreAppointment, auth.AdminOnly())
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) ScheduleAppointment(c echo.Context) error {
	var in Input
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	a, err := h.svc.ScheduleAppointment(c.Request().Context(), httpx.Tenant(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, NewResponse(a))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(a))
}

func (h *Handler) ListAppointments(c echo.Context) error {
	q, pg, err := httpx.ListQuery(c)
	if err != nil {
		return err
	}
	f := Filter{Query: q, Status: Status(c.QueryParam("status"))}
	if f.From, err = httpx.QueryTime(c, "from"); err != nil {
		return err
	}
	if f.To, err = httpx.QueryTime(c, "to"); err != nil {
		return err
	}
	if f.DoctorID, err = httpx.QueryUUID(c, "doctorId"); err != nil {
		return err
	}
	if f.PatientID, err = httpx.QueryUUID(c, "patientId"); err != nil {
		return err
	}

	items, total, err := h.svc.SearchAppointments(c.Request().Context(), httpx.Tenant(c), f)
	if err != nil {
		return err
	}
	out := make([]Response, len(items))
	for i, a := range items {
		out[i] = NewResponse(a)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(a))
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in RescheduleInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	a, err := h.svc.RescheduleAppointment(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(a))
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.ChangeStatus(c.Request().Context(), httpx.Tenant(c), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(a))
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), httpx.Tenant(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RestoreAppointment(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.RestoreAppointment(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(a))
}
