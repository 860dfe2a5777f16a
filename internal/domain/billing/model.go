package billing

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/record"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "Cash"
	MethodCard         PaymentMethod = "Card"
	MethodBankTransfer PaymentMethod = "BankTransfer"
	MethodInsurance    PaymentMethod = "Insurance"
	MethodOther        PaymentMethod = "Other"
)

var validMethods = map[string]bool{
	string(MethodCash):         true,
	string(MethodCard):         true,
	string(MethodBankTransfer): true,
	string(MethodInsurance):    true,
	string(MethodOther):        true,
}

type Status string

const (
	StatusPending       Status = "Pending"
	StatusPartiallyPaid Status = "PartiallyPaid"
	StatusPaid          Status = "Paid"
	StatusCancelled     Status = "Cancelled"
)

var validStatuses = map[Status]bool{
	StatusPending:       true,
	StatusPartiallyPaid: true,
	StatusPaid:          true,
	StatusCancelled:     true,
}

// Open reports whether a billing in s still accepts payments.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusPartiallyPaid
}

// cents rounds a monetary amount to minor units for comparisons.
func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}

// InsuranceProvider maps to the insurance_providers table.
type InsuranceProvider struct {
	record.Record
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Website  string `json:"website,omitempty"`
	IsActive bool   `json:"is_active"`
}

func cloneProvider(p *InsuranceProvider) *InsuranceProvider {
	c := *p
	return &c
}

type ProviderInput struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Website  string `json:"website"`
	IsActive *bool  `json:"is_active"`
}

type ProviderFilter struct {
	record.Query
	Active *bool
}

// Billing maps to the billings table. Amounts are in Currency.
type Billing struct {
	record.Record
	AppointmentID       uuid.UUID     `json:"appointment_id"`
	PatientID           *uuid.UUID    `json:"patient_id,omitempty"`
	DoctorID            *uuid.UUID    `json:"doctor_id,omitempty"`
	PatientName         string        `json:"patient_name"`
	DoctorName          string        `json:"doctor_name,omitempty"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	Amount              float64       `json:"amount"`
	Currency            string        `json:"currency"`
	UsesInsurance       bool          `json:"uses_insurance"`
	InsuranceProviderID *uuid.UUID    `json:"insurance_provider_id,omitempty"`
	CoverageAmount      float64       `json:"coverage_amount"`
	CopayAmount         float64       `json:"copay_amount"`
	PaidAmount          float64       `json:"paid_amount"`
	Status              Status        `json:"status"`
	Notes               string        `json:"notes,omitempty"`
	PaidAt              *time.Time    `json:"paid_at,omitempty"`
}

// Balance is the amount still owed.
func (b *Billing) Balance() float64 {
	return fromCents(cents(b.Amount) - cents(b.PaidAmount))
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneBilling(b *Billing) *Billing {
	c := *b
	c.PatientID = cloneUUID(b.PatientID)
	c.DoctorID = cloneUUID(b.DoctorID)
	c.InsuranceProviderID = cloneUUID(b.InsuranceProviderID)
	if b.PaidAt != nil {
		t := *b.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// Input is the writable part of a billing. Patient and doctor default to
// the appointment's; a zero amount defaults to the appointment fee.
type Input struct {
	AppointmentID       uuid.UUID     `json:"appointment_id"`
	PatientID           *uuid.UUID    `json:"patient_id"`
	DoctorID            *uuid.UUID    `json:"doctor_id"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	Amount              float64       `json:"amount"`
	Currency            string        `json:"currency"`
	UsesInsurance       bool          `json:"uses_insurance"`
	InsuranceProviderID *uuid.UUID    `json:"insurance_provider_id"`
	CoverageAmount      float64       `json:"coverage_amount"`
	CopayAmount         float64       `json:"copay_amount"`
	Notes               string        `json:"notes"`
}

// Filter narrows a billing search. From/To bound the creation time. Term
// matches participant names and notes.
type Filter struct {
	record.Query
	Status        Status
	PatientID     *uuid.UUID
	PaymentMethod PaymentMethod
	From          *time.Time
	To            *time.Time
}

// Response is the API projection of a billing.
type Response struct {
	*Billing
	Balance float64 `json:"balance"`
}

func NewResponse(b *Billing) Response {
	return Response{Billing: b, Balance: b.Balance()}
}
