// Package httpx holds the request parsing shared by the REST handlers.
package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/record"
	"github.com/clinic/clinic/pkg/pagination"
)

// Tenant returns the tenant resolved by db.TenantMiddleware.
func Tenant(c echo.Context) string {
	return db.TenantFromContext(c.Request().Context())
}

// Bind decodes the request body. Decode failures are client errors.
func Bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	return nil
}

// PathID parses the :id path parameter.
func PathID(c echo.Context) (uuid.UUID, error) {
	return PathUUID(c, "id")
}

func PathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// QueryUUID parses an optional uuid query parameter.
func QueryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

// QueryTime parses an optional RFC 3339 timestamp or YYYY-MM-DD date.
func QueryTime(c echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC 3339 or YYYY-MM-DD")
}

// QueryBool parses an optional boolean; nil when absent.
func QueryBool(c echo.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &b, nil
}

// ListQuery combines paging, search, sort and includeDeleted into the
// repository query.
func ListQuery(c echo.Context) (record.Query, pagination.Params, error) {
	p := pagination.FromContext(c)
	includeDeleted, err := QueryBool(c, "includeDeleted")
	if err != nil {
		return record.Query{}, p, err
	}
	q := record.Query{
		Term: p.Search,
		Sort: strings.TrimSpace(c.QueryParam("sort")),
		Skip: p.Skip(),
		Take: p.Take(),
	}
	if includeDeleted != nil {
		q.IncludeDeleted = *includeDeleted
	}
	if strings.EqualFold(c.QueryParam("order"), "desc") {
		q.Desc = true
	}
	return q, p, nil
}
