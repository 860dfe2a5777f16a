package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const ProblemContentType = "application/problem+json"

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// problemTypeBase prefixes the type URI of coded business failures.
const problemTypeBase = "https://clinic.local/problems/"

// statusTypes links each status to its defining RFC section.
var statusTypes = map[int]string{
	http.StatusBadRequest:            "https://tools.ietf.org/html/rfc9110#section-15.5.1",
	http.StatusUnauthorized:          "https://tools.ietf.org/html/rfc9110#section-15.5.2",
	http.StatusForbidden:             "https://tools.ietf.org/html/rfc9110#section-15.5.4",
	http.StatusNotFound:              "https://tools.ietf.org/html/rfc9110#section-15.5.5",
	http.StatusMethodNotAllowed:      "https://tools.ietf.org/html/rfc9110#section-15.5.6",
	http.StatusConflict:              "https://tools.ietf.org/html/rfc9110#section-15.5.10",
	http.StatusRequestEntityTooLarge: "https://tools.ietf.org/html/rfc9110#section-15.5.14",
	http.StatusUnprocessableEntity:   "https://tools.ietf.org/html/rfc9110#section-15.5.21",
	http.StatusTooManyRequests:       "https://tools.ietf.org/html/rfc6585#section-4",
	http.StatusInternalServerError:   "https://tools.ietf.org/html/rfc9110#section-15.6.1",
	http.StatusServiceUnavailable:    "https://tools.ietf.org/html/rfc9110#section-15.6.4",
	http.StatusGatewayTimeout:        "https://tools.ietf.org/html/rfc9110#section-15.6.5",
}

func typeForStatus(status int) string {
	if t, ok := statusTypes[status]; ok {
		return t
	}
	return "about:blank"
}

// typeForCode turns PATIENT_NOT_FOUND into .../patient-not-found.
func typeForCode(code apperr.Code) string {
	return problemTypeBase + strings.ReplaceAll(strings.ToLower(string(code)), "_", "-")
}

// ProblemFromError converts any handler error to problem details. Unknown
// errors become 500; exposeInternal controls whether their message is shown.
func ProblemFromError(err error, exposeInternal bool) Problem {
	if ae, ok := apperr.As(err); ok {
		status := apperr.HTTPStatus(ae.Code)
		return Problem{
			Type:   typeForCode(ae.Code),
			Title:  http.StatusText(status),
			Status: status,
			Detail: ae.Message,
			Code:   string(ae.Code),
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail := ""
		if he.Message != nil {
			detail = fmt.Sprint(he.Message)
		}
		return Problem{
			Type:   typeForStatus(he.Code),
			Title:  http.StatusText(he.Code),
			Status: he.Code,
			Detail: detail,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Problem{
			Type:   typeForStatus(http.StatusGatewayTimeout),
			Title:  http.StatusText(http.StatusGatewayTimeout),
			Status: http.StatusGatewayTimeout,
			Detail: "request processing exceeded the allowed time",
		}
	}

	detail := "An unexpected error occurred."
	if exposeInternal {
		detail = err.Error()
	}
	return Problem{
		Type:   typeForStatus(http.StatusInternalServerError),
		Title:  http.StatusText(http.StatusInternalServerError),
		Status: http.StatusInternalServerError,
		Detail: detail,
	}
}

// ProblemHandler replaces echo's HTTPErrorHandler. Server errors are logged
// once here, with the underlying cause.
func ProblemHandler(logger zerolog.Logger, exposeInternal bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		p := ProblemFromError(err, exposeInternal)
		p.Instance = c.Request().URL.Path
		p.RequestID, _ = c.Get("request_id").(string)

		if p.Status >= http.StatusInternalServerError {
			cause := err
			var he *echo.HTTPError
			if errors.As(err, &he) && he.Internal != nil {
				cause = he.Internal
			}
			logger.Error().Err(cause).
				Str("request_id", p.RequestID).
				Str("path", p.Instance).
				Int("status", p.Status).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(p.Status)
		} else {
			c.Response().Header().Set(echo.HeaderContentType, ProblemContentType)
			werr = c.JSON(p.Status, p)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write problem response")
		}
	}
}
