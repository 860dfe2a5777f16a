package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Names of the three seeded roles. Tokens carry the role name.
const (
	RoleAdministrator = "Administrator"
	RoleDoctor        = "Doctor"
	RolePatient       = "Patient"
)

// RequireRole returns middleware that checks the caller holds one of roles.
// Administrators pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserIDFromContext(c.Request().Context()) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if HasRole(RoleFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether role satisfies any of required.
func HasRole(role string, required ...string) bool {
	if role == RoleAdministrator {
		return true
	}
	for _, r := range required {
		if role == r {
			return true
		}
	}
	return false
}

// AdminOnly requires the Administrator role.
func AdminOnly() echo.MiddlewareFunc { return RequireRole(RoleAdministrator) }

// DoctorOrAdmin requires the Doctor or Administrator role.
func DoctorOrAdmin() echo.MiddlewareFunc { return RequireRole(RoleDoctor, RoleAdministrator) }

// Authenticated only requires a valid token.
func Authenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserIDFromContext(c.Request().Context()) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}
