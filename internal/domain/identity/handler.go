package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
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
	a := api.Group("/auth")
	a.POST("/login", h.Login)
	a.GET("/password-setup/validate", h.ValidateSetupToken)
	a.POST("/password-setup/complete", h.CompletePasswordSetup)
	a.GET("/me", h.Me, auth.Authenticated())
	a.POST("/change-password", h.ChangePassword, auth.Authenticated())
	a.POST("/logout", h.Logout, auth.Authenticated())

	u := api.Group("/users", auth.AdminOnly())
	u.GET("", h.ListUsers)
	u.POST("", h.CreateUser)
	u.GET("/:id", h.GetUser)
	u.PUT("/:id", h.UpdateUser)
	u.DELETE("/:id", h.DeleteUser)
	u.POST("/:id/restore", h.RestoreUser)
	u.POST("/:id/password-setup/reset", h.ResetPasswordSetup)

	api.GET("/doctors", h.ListDoctors, auth.Authenticated())

	r := api.Group("/roles")
	r.GET("", h.ListRoles, auth.Authenticated())
	r.GET("/:id", h.GetRole, auth.Authenticated())
	r.POST("", h.CreateRole, auth.AdminOnly())
	r.PUT("/:id", h.UpdateRole, auth.AdminOnly())
	r.DELETE("/:id", h.DeleteRole, auth.AdminOnly())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type setupCompleteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), httpx.Tenant(c), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ValidateSetupToken(c echo.Context) error {
	info, err := h.svc.ValidateSetupToken(c.Request().Context(), httpx.Tenant(c), c.QueryParam("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) CompletePasswordSetup(c echo.Context) error {
	var req setupCompleteRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.CompletePasswordSetup(c.Request().Context(), httpx.Tenant(c), req.Token, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// currentUserID reads the subject of the authenticated caller.
func currentUserID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

func (h *Handler) Me(c echo.Context) error {
	id, err := currentUserID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	id, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), httpx.Tenant(c), id, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), auth.ClaimsFromContext(c.Request().Context())); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) userFilter(c echo.Context) (UserFilter, pagination.Params, error) {
	q, pg, err := httpx.ListQuery(c)
	if err != nil {
		return UserFilter{}, pg, err
	}
	f := UserFilter{Query: q}
	if f.RoleID, err = httpx.QueryUUID(c, "roleId"); err != nil {
		return f, pg, err
	}
	if f.Active, err = httpx.QueryBool(c, "active"); err != nil {
		return f, pg, err
	}
	return f, pg, nil
}

func (h *Handler) ListUsers(c echo.Context) error {
	f, pg, err := h.userFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.SearchUsers(c.Request().Context(), httpx.Tenant(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListDoctors(c echo.Context) error {
	f, pg, err := h.userFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), httpx.Tenant(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) CreateUser(c echo.Context) error {
	var in UserInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.RegisterUser(c.Request().Context(), httpx.Tenant(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateUser(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in UserInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.UpdateUser(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	if self, _ := currentUserID(c); self == id {
		return apperr.Validation("you cannot delete your own account")
	}
	if err := h.svc.DeleteUser(c.Request().Context(), httpx.Tenant(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RestoreUser(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.RestoreUser(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ResetPasswordSetup(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.ResetPasswordSetup(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListRoles(c echo.Context) error {
	q, pg, err := httpx.ListQuery(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListRoles(c.Request().Context(), httpx.Tenant(c), RoleFilter{Query: q})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetRole(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	ro, err := h.svc.GetRole(c.Request().Context(), httpx.Tenant(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ro)
}

func (h *Handler) CreateRole(c echo.Context) error {
	var in RoleInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ro, err := h.svc.CreateRole(c.Request().Context(), httpx.Tenant(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ro)
}

func (h *Handler) UpdateRole(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	var in RoleInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ro, err := h.svc.UpdateRole(c.Request().Context(), httpx.Tenant(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ro)
}

func (h *Handler) DeleteRole(c echo.Context) error {
	id, err := httpx.PathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRole(c.Request().Context(), httpx.Tenant(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
