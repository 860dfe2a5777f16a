// Package apperr models expected business-rule failures as typed values.
// Services return them as ordinary errors; the HTTP layer maps the code to a
// status without the service knowing about HTTP.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	ValidationFailed        Code = "VALIDATION_FAILED"
	InvalidTimeRange        Code = "INVALID_TIME_RANGE"
	InvalidStatus           Code = "INVALID_STATUS"
	InvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	WeakPassword            Code = "WEAK_PASSWORD"

	PatientNotFound           Code = "PATIENT_NOT_FOUND"
	DoctorNotFound            Code = "DOCTOR_NOT_FOUND"
	UserNotFound              Code = "USER_NOT_FOUND"
	RoleNotFound              Code = "ROLE_NOT_FOUND"
	AppointmentNotFound       Code = "APPOINTMENT_NOT_FOUND"
	ConsultationNotFound      Code = "CONSULTATION_NOT_FOUND"
	BillingNotFound           Code = "BILLING_NOT_FOUND"
	InsuranceProviderNotFound Code = "INSURANCE_PROVIDER_NOT_FOUND"

	DoctorUnavailable     Code = "DOCTOR_UNAVAILABLE"
	SchedulingBusy        Code = "SCHEDULING_BUSY"
	EmailAlreadyExists    Code = "EMAIL_ALREADY_EXISTS"
	RoleAlreadyExists     Code = "ROLE_ALREADY_EXISTS"
	BillingAlreadyExists  Code = "BILLING_ALREADY_EXISTS"
	CrossTenantReference  Code = "CROSS_TENANT_REFERENCE"
	RoleProtected         Code = "ROLE_PROTECTED"
	InvalidCredentials    Code = "INVALID_CREDENTIALS"
	PasswordSetupRequired Code = "PASSWORD_SETUP_REQUIRED"
	InvalidSetupToken     Code = "INVALID_SETUP_TOKEN"
	SetupTokenExpired     Code = "SETUP_TOKEN_EXPIRED"
)

// Error is a business failure with a stable code and a human message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation is shorthand for a VALIDATION_FAILED error.
func Validation(format string, args ...interface{}) *Error {
	return Newf(ValidationFailed, format, args...)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

var statusByCode = map[Code]int{
	ValidationFailed:        http.StatusUnprocessableEntity,
	InvalidTimeRange:        http.StatusUnprocessableEntity,
	InvalidStatus:           http.StatusUnprocessableEntity,
	WeakPassword:            http.StatusUnprocessableEntity,
	CrossTenantReference:    http.StatusUnprocessableEntity,
	InvalidStatusTransition: http.StatusConflict,

	PatientNotFound:           http.StatusNotFound,
	DoctorNotFound:            http.StatusNotFound,
	UserNotFound:              http.StatusNotFound,
	RoleNotFound:              http.StatusNotFound,
	AppointmentNotFound:       http.StatusNotFound,
	ConsultationNotFound:      http.StatusNotFound,
	BillingNotFound:           http.StatusNotFound,
	InsuranceProviderNotFound: http.StatusNotFound,

	DoctorUnavailable:    http.StatusConflict,
	SchedulingBusy:       http.StatusConflict,
	EmailAlreadyExists:   http.StatusConflict,
	RoleAlreadyExists:    http.StatusConflict,
	BillingAlreadyExists: http.StatusConflict,

	RoleProtected:         http.StatusForbidden,
	InvalidCredentials:    http.StatusUnauthorized,
	PasswordSetupRequired: http.StatusUnauthorized,
	InvalidSetupToken:     http.StatusBadRequest,
	SetupTokenExpired:     http.StatusBadRequest,
}

// HTTPStatus maps a code to its response status. Unknown codes are treated
// as client errors.
func HTTPStatus(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusBadRequest
}
