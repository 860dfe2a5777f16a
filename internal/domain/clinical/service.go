package clinical

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/validate"
)

type PatientDirectory interface {
	PatientName(ctx context.Context, tenantID string, id uuid.UUID) (string, error)
}

type DoctorDirectory interface {
	DoctorName(ctx context.Context, tenantID string, id uuid.UUID) (string, error)
}

// AppointmentRefs checks appointment references.
type AppointmentRefs interface {
	ReferenceAppointment(ctx context.Context, tenantID string, id uuid.UUID) (*scheduling.Reference, error)
}

type Service struct {
	repo         Repository
	patients     PatientDirectory
	doctors      DoctorDirectory
	appointments AppointmentRefs
}

func NewService(repo Repository, patients PatientDirectory, doctors DoctorDirectory, appointments AppointmentRefs) *Service {
	return &Service{repo: repo, patients: patients, doctors: doctors, appointments: appointments}
}

func notFound(id uuid.UUID) error {
	return apperr.Newf(apperr.ConsultationNotFound, "consultation %s not found", id)
}

func validateInput(in *Input) error {
	in.VisitReason = strings.TrimSpace(in.VisitReason)
	v := validate.New()
	v.Check(in.PatientID != uuid.Nil, "patient_id", "is required")
	v.Check(in.DoctorID != uuid.Nil, "doctor_id", "is required")
	v.Required("visit_reason", in.VisitReason)
	v.MaxLen("visit_reason", in.VisitReason, 500)
	v.MaxLen("diagnosis", in.Diagnosis, 2000)
	for i, s := range in.Symptoms {
		field := fmt.Sprintf("symptoms[%d]", i)
		v.Required(field+".name", strings.TrimSpace(s.Name))
		v.Required(field+".severity", string(s.Severity))
		v.OneOf(field+".severity", string(s.Severity), validSeverities)
	}
	if lr := in.LabRequisition; lr != nil {
		v.Check(len(lr.Items) > 0, "lab_requisition.items", "must not be empty")
		for i, it := range lr.Items {
			v.Required(fmt.Sprintf("lab_requisition.items[%d].test_name", i), strings.TrimSpace(it.TestName))
		}
	}
	if p := in.Prescription; p != nil {
		v.Check(len(p.Items) > 0, "prescription.items", "must not be empty")
		for i, it := range p.Items {
			field := fmt.Sprintf("prescription.items[%d]", i)
			v.Required(field+".medication", strings.TrimSpace(it.Medication))
			v.Required(field+".dosage", strings.TrimSpace(it.Dosage))
			v.Required(field+".frequency", strings.TrimSpace(it.Frequency))
		}
	}
	return v.Err()
}

// resolve checks the references of in and fills the name snapshots of c.
// A referenced appointment must belong to the tenant and, when it has a
// registered patient, to the same patient.
func (s *Service) resolve(ctx context.Context, tenantID string, c *Consultation, in Input) error {
	patientName, err := s.patients.PatientName(ctx, tenantID, in.PatientID)
	if err != nil {
		return err
	}
	doctorName, err := s.doctors.DoctorName(ctx, tenantID, in.DoctorID)
	if err != nil {
		return err
	}
	if in.AppointmentID != nil {
		ref, err := s.appointments.ReferenceAppointment(ctx, tenantID, *in.AppointmentID)
		if err != nil {
			return err
		}
		if ref.PatientID != nil && *ref.PatientID != in.PatientID {
			return apperr.Validation("appointment_id belongs to another patient")
		}
	}
	c.PatientName = patientName
	c.DoctorName = doctorName
	return nil
}

func (s *Service) CreateConsultation(ctx context.Context, tenantID string, in Input) (*Consultation, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	c := &Consultation{}
	if err := s.resolve(ctx, tenantID, c, in); err != nil {
		return nil, err
	}
	in.apply(c)
	if err := s.repo.Add(ctx, tenantID, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetConsultation(ctx context.Context, tenantID string, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound(id)
	}
	return c, nil
}

func (s *Service) SearchConsultations(ctx context.Context, tenantID string, f Filter) ([]*Consultation, int, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, apperr.New(apperr.InvalidTimeRange, "from must be before to")
	}
	items, err := s.repo.Search(ctx, tenantID, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, tenantID, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) CountConsultations(ctx context.Context, tenantID string, f Filter) (int, error) {
	return s.repo.Count(ctx, tenantID, f)
}

func (s *Service) UpdateConsultation(ctx context.Context, tenantID string, id uuid.UUID, in Input) (*Consultation, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	c, err := s.GetConsultation(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolve(ctx, tenantID, c, in); err != nil {
		return nil, err
	}
	in.apply(c)
	ok, err := s.repo.Update(ctx, tenantID, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(id)
	}
	return c, nil
}

func (s *Service) DeleteConsultation(ctx context.Context, tenantID string, id uuid.UUID) error {
	ok, err := s.repo.SoftDelete(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id)
	}
	return nil
}

func (s *Service) RestoreConsultation(ctx context.Context, tenantID string, id uuid.UUID) (*Consultation, error) {
	ok, err := s.repo.Restore(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.ConsultationNotFound, "deleted consultation %s not found", id)
	}
	return s.GetConsultation(ctx, tenantID, id)
}
