package billing

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/httpx"
	"github.com/clinic/clinic/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/billings")
	g.GET("", h.ListBillings, auth.DoctorOrAdmin())
	g.GET("/export", h.ExportBillings, auth.AdminOnly())
	g.GET("/:id", h.GetBilling, auth.DoctorOrAdmin())
	g.POST("", h.CreateBilling, auth.AdminOnly())
	g.PUT("/:id", h.UpdateBilling, auth.AdminOnly())
	g.POST("/:id/payments", h.RecordPayment, auth.AdminOnly())
	g.POST("/:id/cancel", h.CancelBilling, auth.AdminOnly())
	g.DELETE("/:id", h.DeleteBilling, auth.AdminOnly())
	g.POST("/:id/restore", h.RestoreBilling, auth.AdminOnly())

	p := api.Group("/insurance-providers")
	p.GET("", h.ListProviders, auth.DoctorOrAdmin())
	p.GET("/:id", h.GetProvider, auth.DoctorOrAdmin())
	p.POST("", h.CreateProvider, auth.AdminOnly())
	p.PUT("/:id", h.UpdateProvider, auth.AdminOnly())
	p.DELETE("/:id", h.DeleteProvider, auth.AdminOnly())
	p.POST("/:id/restore", h.RestoreProvider, auth.AdminOnly())
}

func filterFrom(c echo.Context) (Filter, pagination.Params, error) {
	q, pg, err := httpx.ListQuery(c)
	if err != nil {
		return Filter{}, pg, err
	}
	f := Filter{
		Query:         q,
		Status:        Status(c.QueryParam("status")),
		PaymentMethod: PaymentMethod(c.QueryParam("paymentMethod")),
	}
	if f.PatientID, err = httpx.QueryUUID(c, "patientId"); err != nil {
		return f, pg, err
	}
	if f.From, err = httpx.QueryTime(c, "from"); err != nil {
		return f, pg, err
	}
	if f.To, err = httpx.QueryTime(c, "to"); err != nil {
		return f, pg, err
	}
	return f, pg, nil
}

func (h *Handler) ListBillings(c echo.Context) error {
	f, pg, err := filterFrom(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.SearchBillings(c.Request().Context(), httpx.Tenant(c), f)
	if err != nil {
		return err
	}
	out := make([]Response, len(items))
	for i, b := range items {
		out[i] = NewResponse(b)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg))
}

func (h *Handler) ExportBillings(c echo.Context) error {
	f, _, err := filterFrom(c)
	if err != nil {
		return err
	}
	data, err := h.svc.ExportBillings(c.Request().Context(), httpx.Tenant(c), f)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("billings-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}

func (h *Handler) GetBilling(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBilling(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(b))
}

func (h *Handler) CreateBilling(c echo.Context) error {
	var in Input
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	b, err := h.svc.CreateBilling(c.Request().Context(), httpx.Tenant(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, NewResponse(b))
}

func (h *Handler) UpdateBilling(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	b, err := h.svc.UpdateBilling(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(b))
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in PaymentInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	b, err := h.svc.RecordPayment(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(b))
}

func (h *Handler) CancelBilling(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.CancelBilling(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(b))
}

func (h *Handler) DeleteBilling(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBilling(c.Request().Context(), httpx.Tenant(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RestoreBilling(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.RestoreBilling(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewResponse(b))
}

func (h *Handler) ListProviders(c echo.Context) error {
	q, pg, err := httpx.ListQuery(c)
	if err != nil {
		return err
	}
	f := ProviderFilter{Query: q}
	if f.Active, err = httpx.QueryBool(c, "active"); err != nil {
		return err
	}
	items, total, err := h.svc.SearchProviders(c.Request().Context(), httpx.Tenant(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProvider(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateProvider(c echo.Context) error {
	var in ProviderInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.CreateProvider(c.Request().Context(), httpx.Tenant(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProvider(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in ProviderInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.UpdateProvider(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProvider(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteProvider(c.Request().Context(), httpx.Tenant(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RestoreProvider(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.RestoreProvider(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
