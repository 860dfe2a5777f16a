package clinical

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/record"
)

type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

var validSeverities = map[string]bool{
	string(SeverityMild):     true,
	string(SeverityModerate): true,
	string(SeveritySevere):   true,
}

// Symptom is one complaint reported during a consultation.
type Symptom struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Severity Severity  `json:"severity"`
	Duration string    `json:"duration,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

type LabTest struct {
	ID           uuid.UUID `json:"id"`
	TestName     string    `json:"test_name"`
	Instructions string    `json:"instructions,omitempty"`
}

// LabRequisition orders one or more lab tests.
type LabRequisition struct {
	Notes string    `json:"notes,omitempty"`
	Items []LabTest `json:"items"`
}

type PrescriptionItem struct {
	ID           uuid.UUID `json:"id"`
	Medication   string    `json:"medication"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	Duration     string    `json:"duration,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
}

type Prescription struct {
	Notes string             `json:"notes,omitempty"`
	Items []PrescriptionItem `json:"items"`
}

// Consultation maps to the consultations table. Symptoms, lab requisition
// and prescription are owned by the consultation and stored with it.
type Consultation struct {
	record.Record
	PatientID      uuid.UUID       `json:"patient_id"`
	DoctorID       uuid.UUID       `json:"doctor_id"`
	AppointmentID  *uuid.UUID      `json:"appointment_id,omitempty"`
	PatientName    string          `json:"patient_name"`
	DoctorName     string          `json:"doctor_name"`
	VisitReason    string          `json:"visit_reason"`
	Notes          string          `json:"notes,omitempty"`
	Diagnosis      string          `json:"diagnosis,omitempty"`
	Symptoms       []Symptom       `json:"symptoms"`
	LabRequisition *LabRequisition `json:"lab_requisition,omitempty"`
	Prescription   *Prescription   `json:"prescription,omitempty"`
}

func cloneConsultation(c *Consultation) *Consultation {
	out := *c
	if c.AppointmentID != nil {
		id := *c.AppointmentID
		out.AppointmentID = &id
	}
	out.Symptoms = append([]Symptom(nil), c.Symptoms...)
	if c.LabRequisition != nil {
		lr := *c.LabRequisition
		lr.Items = append([]LabTest(nil), c.LabRequisition.Items...)
		out.LabRequisition = &lr
	}
	if c.Prescription != nil {
		p := *c.Prescription
		p.Items = append([]PrescriptionItem(nil), c.Prescription.Items...)
		out.Prescription = &p
	}
	return &out
}

// Input is the writable part of a consultation. Sub-records replace the
// stored ones wholesale.
type Input struct {
	PatientID      uuid.UUID       `json:"patient_id"`
	DoctorID       uuid.UUID       `json:"doctor_id"`
	AppointmentID  *uuid.UUID      `json:"appointment_id"`
	VisitReason    string          `json:"visit_reason"`
	Notes          string          `json:"notes"`
	Diagnosis      string          `json:"diagnosis"`
	Symptoms       []Symptom       `json:"symptoms"`
	LabRequisition *LabRequisition `json:"lab_requisition"`
	Prescription   *Prescription   `json:"prescription"`
}

// apply copies in onto c and gives every sub-record a fresh id.
func (in Input) apply(c *Consultation) {
	c.PatientID = in.PatientID
	c.DoctorID = in.DoctorID
	c.AppointmentID = in.AppointmentID
	c.VisitReason = in.VisitReason
	c.Notes = in.Notes
	c.Diagnosis = in.Diagnosis

	c.Symptoms = make([]Symptom, len(in.Symptoms))
	for i, s := range in.Symptoms {
		s.ID = uuid.New()
		c.Symptoms[i] = s
	}
	c.LabRequisition = nil
	if in.LabRequisition != nil {
		lr := LabRequisition{Notes: in.LabRequisition.Notes, Items: make([]LabTest, len(in.LabRequisition.Items))}
		for i, it := range in.LabRequisition.Items {
			it.ID = uuid.New()
			lr.Items[i] = it
		}
		c.LabRequisition = &lr
	}
	c.Prescription = nil
	if in.Prescription != nil {
		p := Prescription{Notes: in.Prescription.Notes, Items: make([]PrescriptionItem, len(in.Prescription.Items))}
		for i, it := range in.Prescription.Items {
			it.ID = uuid.New()
			p.Items[i] = it
		}
		c.Prescription = &p
	}
}

// Filter narrows a consultation search. From/To bound the creation time.
// Term matches visit reason, diagnosis and participant names.
type Filter struct {
	record.Query
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	From      *time.Time
	To        *time.Time
}
