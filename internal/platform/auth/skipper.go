package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths reachable without a bearer token. Tenant
// resolution still applies to them.
var publicPaths = map[string]bool{
	"/health":                              true,
	"/health/db":                           true,
	"/api/v1/auth/login":                   true,
	"/api/v1/auth/password-setup/validate": true,
	"/api/v1/auth/password-setup/complete": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
