package patient

import (
	"time"

	"github.com/clinic/clinic/internal/platform/record"
)

// Gender values accepted on a patient.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

var validGenders = map[string]bool{
	GenderMale: true, GenderFemale: true, GenderOther: true, GenderUnknown: true,
}

// Patient maps to the patients table.
type Patient struct {
	record.Record
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	DateOfBirth           *time.Time `json:"date_of_birth,omitempty"`
	Gender                string     `json:"gender,omitempty"`
	Email                 string     `json:"email,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	DocumentNumber        string     `json:"document_number,omitempty"`
	Address               string     `json:"address,omitempty"`
	City                  string     `json:"city,omitempty"`
	Country               string     `json:"country,omitempty"`
	EmergencyContactName  string     `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string     `json:"emergency_contact_phone,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
}

// FullName is the display name snapshotted onto appointments.
func (p *Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Age returns the completed years at now, or nil when the date of birth is
// unknown. A birth date in the future yields 0.
func (p *Patient) Age(now time.Time) *int {
	if p.DateOfBirth == nil {
		return nil
	}
	dob := p.DateOfBirth.UTC()
	now = now.UTC()
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return &age
}

func clonePatient(p *Patient) *Patient {
	c := *p
	if p.DateOfBirth != nil {
		dob := *p.DateOfBirth
		c.DateOfBirth = &dob
	}
	return &c
}

// Response is the API projection of a patient with its derived age.
type Response struct {
	*Patient
	Age *int `json:"age"`
}

func NewResponse(p *Patient, now time.Time) Response {
	return Response{Patient: p, Age: p.Age(now)}
}

// Input is the writable part of a patient.
type Input struct {
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	DateOfBirth           *time.Time `json:"date_of_birth"`
	Gender                string     `json:"gender"`
	Email                 string     `json:"email"`
	Phone                 string     `json:"phone"`
	DocumentNumber        string     `json:"document_number"`
	Address               string     `json:"address"`
	City                  string     `json:"city"`
	Country               string     `json:"country"`
	EmergencyContactName  string     `json:"emergency_contact_name"`
	EmergencyContactPhone string     `json:"emergency_contact_phone"`
	Notes                 string     `json:"notes"`
}

func (in Input) apply(p *Patient) {
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.DateOfBirth = in.DateOfBirth
	p.Gender = in.Gender
	p.Email = in.Email
	p.Phone = in.Phone
	p.DocumentNumber = in.DocumentNumber
	p.Address = in.Address
	p.City = in.City
	p.Country = in.Country
	p.EmergencyContactName = in.EmergencyContactName
	p.EmergencyContactPhone = in.EmergencyContactPhone
	p.Notes = in.Notes
}

// Filter narrows a patient search. Term matches names, email, phone and
// document number.
type Filter struct {
	record.Query
	Gender      string
	BornFrom    *time.Time
	BornTo      *time.Time
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
