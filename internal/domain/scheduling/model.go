package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/record"
)

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusNoShow    Status = "NoShow"
)

// transitions lists the statuses reachable from each status. Completed,
// Cancelled and NoShow are terminal.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusNoShow, StatusCompleted},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether an appointment in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// BlocksCalendar reports whether an appointment in s occupies its doctor.
func (s Status) BlocksCalendar() bool { return s != StatusCancelled }

const DefaultCurrency = "USD"

// Appointment maps to the appointments table. PatientName and DoctorName are
// snapshots taken when the references were last set.
type Appointment struct {
	record.Record
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	ProspectName  string     `json:"prospect_name,omitempty"`
	ProspectPhone string     `json:"prospect_phone,omitempty"`
	ProspectEmail string     `json:"prospect_email,omitempty"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	PatientName   string     `json:"patient_name"`
	DoctorName    string     `json:"doctor_name,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Location      string     `json:"location,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	Status        Status     `json:"status"`
	Fee           float64    `json:"fee"`
	Currency      string     `json:"currency"`
}

// Overlaps reports whether the half-open windows [StartAt, EndAt) and
// [start, end) intersect. Touching windows do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartAt.Before(end) && start.Before(a.EndAt)
}

// IsProspect reports whether the participant was captured inline.
func (a *Appointment) IsProspect() bool { return a.PatientID == nil }

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneAppointment(a *Appointment) *Appointment {
	c := *a
	c.PatientID = cloneUUID(a.PatientID)
	c.DoctorID = cloneUUID(a.DoctorID)
	return &c
}

// Input is the writable part of an appointment.
type Input struct {
	PatientID     *uuid.UUID `json:"patient_id"`
	ProspectName  string     `json:"prospect_name"`
	ProspectPhone string     `json:"prospect_phone"`
	ProspectEmail string     `json:"prospect_email"`
	DoctorID      *uuid.UUID `json:"doctor_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Location      string     `json:"location"`
	Notes         string     `json:"notes"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	Status        Status     `json:"status"`
	Fee           float64    `json:"fee"`
	Currency      string     `json:"currency"`
}

// RescheduleInput moves an appointment, optionally to another doctor.
type RescheduleInput struct {
	StartAt  time.Time  `json:"start_at"`
	EndAt    time.Time  `json:"end_at"`
	DoctorID *uuid.UUID `json:"doctor_id"`
}

// Filter narrows an appointment search. From/To select appointments that
// intersect the window. Term matches title and participant names.
type Filter struct {
	record.Query
	From      *time.Time
	To        *time.Time
	Status    Status
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
}

// Response is the API projection of an appointment.
type Response struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      string     `json:"tenant_id"`
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	PatientName   string     `json:"patient_name"`
	IsProspect    bool       `json:"is_prospect"`
	ProspectPhone string     `json:"prospect_phone,omitempty"`
	ProspectEmail string     `json:"prospect_email,omitempty"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	DoctorName    string     `json:"doctor_name,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Location      string     `json:"location,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	DurationMin   int        `json:"duration_minutes"`
	Status        Status     `json:"status"`
	Fee           float64    `json:"fee"`
	Currency      string     `json:"currency"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewResponse(a *Appointment) Response {
	name := a.PatientName
	if a.IsProspect() {
		name = a.ProspectName
	}
	return Response{
		ID:            a.ID,
		TenantID:      a.TenantID,
		PatientID:     a.PatientID,
		PatientName:   name,
		IsProspect:    a.IsProspect(),
		ProspectPhone: a.ProspectPhone,
		ProspectEmail: a.ProspectEmail,
		DoctorID:      a.DoctorID,
		DoctorName:    a.DoctorName,
		Title:         a.Title,
		Description:   a.Description,
		Location:      a.Location,
		Notes:         a.Notes,
		StartAt:       a.StartAt,
		EndAt:         a.EndAt,
		DurationMin:   int(a.EndAt.Sub(a.StartAt) / time.Minute),
		Status:        a.Status,
		Fee:           a.Fee,
		Currency:      a.Currency,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// Model maps a projection back to an appointment. Lifecycle is not part of
// the projection and comes back active.
func (r Response) Model() *Appointment {
	a := &Appointment{
		Record: record.Record{
			ID:        r.ID,
			TenantID:  r.TenantID,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		PatientID:     r.PatientID,
		ProspectPhone: r.ProspectPhone,
		ProspectEmail: r.ProspectEmail,
		DoctorID:      r.DoctorID,
		DoctorName:    r.DoctorName,
		Title:         r.Title,
		Description:   r.Description,
		Location:      r.Location,
		Notes:         r.Notes,
		StartAt:       r.StartAt,
		EndAt:         r.EndAt,
		Status:        r.Status,
		Fee:           r.Fee,
		Currency:      r.Currency,
	}
	if r.IsProspect {
		a.ProspectName = r.PatientName
	} else {
		a.PatientName = r.PatientName
	}
	return a
}

// Reference is what other domains learn about an appointment they point at.
type Reference struct {
	ID          uuid.UUID
	PatientID   *uuid.UUID
	DoctorID    *uuid.UUID
	PatientName string
	DoctorName  string
	StartAt     time.Time
	Status      Status
	Fee         float64
	Currency    string
}
