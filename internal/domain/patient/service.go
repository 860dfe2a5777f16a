package patient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/record"
	"github.com/clinic/clinic/internal/platform/validate"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: record.Now}
}

func (s *Service) validate(in *Input) error {
	in.Email = validate.NormalizeEmail(in.Email)
	v := validate.New()
	v.Required("first_name", in.FirstName)
	v.Required("last_name", in.LastName)
	v.MaxLen("first_name", in.FirstName, 100)
	v.MaxLen("last_name", in.LastName, 100)
	v.Email("email", in.Email)
	v.OneOf("gender", in.Gender, validGenders)
	v.MaxLen("phone", in.Phone, 32)
	v.MaxLen("document_number", in.DocumentNumber, 64)
	if in.DateOfBirth != nil {
		v.Check(!in.DateOfBirth.After(s.now()), "date_of_birth", "must not be in the future")
	}
	return v.Err()
}

func (s *Service) CreatePatient(ctx context.Context, tenantID string, in Input) (*Patient, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	p := &Patient{}
	in.apply(p)
	if err := s.repo.Add(ctx, tenantID, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.Newf(apperr.PatientNotFound, "patient %s not found", id)
	}
	return p, nil
}

// PatientName returns the display name of an active patient of tenantID.
// A patient of another tenant is reported as not found.
func (s *Service) PatientName(ctx context.Context, tenantID string, id uuid.UUID) (string, error) {
	p, err := s.GetPatient(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	return p.FullName(), nil
}

func (s *Service) SearchPatients(ctx context.Context, tenantID string, f Filter) ([]*Patient, int, error) {
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

func (s *Service) CountPatients(ctx context.Context, tenantID string, f Filter) (int, error) {
	return s.repo.Count(ctx, tenantID, f)
}

func (s *Service) UpdatePatient(ctx context.Context, tenantID string, id uuid.UUID, in Input) (*Patient, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	p, err := s.GetPatient(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	ok, err := s.repo.Update(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.PatientNotFound, "patient %s not found", id)
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, tenantID string, id uuid.UUID) error {
	ok, err := s.repo.SoftDelete(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Newf(apperr.PatientNotFound, "patient %s not found", id)
	}
	return nil
}

func (s *Service) RestorePatient(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	ok, err := s.repo.Restore(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.PatientNotFound, "deleted patient %s not found", id)
	}
	return s.GetPatient(ctx, tenantID, id)
}
