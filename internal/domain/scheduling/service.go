package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lock"
	"github.com/clinic/clinic/internal/platform/validate"
)

// PatientDirectory resolves patient references within a tenant.
type PatientDirectory interface {
	PatientName(ctx context.Context, tenantID string, id uuid.UUID) (string, error)
}

// DoctorDirectory resolves users holding the Doctor role within a tenant.
type DoctorDirectory interface {
	DoctorName(ctx context.Context, tenantID string, id uuid.UUID) (string, error)
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	doctors  DoctorDirectory
	locker   lock.Locker
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientDirectory, doctors DoctorDirectory, locker lock.Locker, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocalLocker(0)
	}
	return &Service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		locker:   locker,
		logger:   logger.With().Str("component", "scheduling").Logger(),
	}
}

func notFound(id uuid.UUID) error {
	return apperr.Newf(apperr.AppointmentNotFound, "appointment %s not found", id)
}

func checkWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return apperr.New(apperr.InvalidTimeRange, "start_at must be before end_at")
	}
	return nil
}

func (s *Service) validate(in *Input) error {
	if err := checkWindow(in.StartAt, in.EndAt); err != nil {
		return err
	}
	if in.Status != "" && !in.Status.Valid() {
		return apperr.Newf(apperr.InvalidStatus, "unknown appointment status %q", in.Status)
	}
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	in.ProspectName = strings.TrimSpace(in.ProspectName)
	in.ProspectEmail = validate.NormalizeEmail(in.ProspectEmail)

	v := validate.New()
	if in.PatientID == nil {
		v.Required("prospect_name", in.ProspectName)
	}
	v.MaxLen("prospect_name", in.ProspectName, 200)
	v.MaxLen("prospect_phone", in.ProspectPhone, 32)
	v.Email("prospect_email", in.ProspectEmail)
	v.MaxLen("title", in.Title, 200)
	v.MaxLen("location", in.Location, 200)
	v.Check(in.Fee >= 0, "fee", "must not be negative")
	v.Currency("currency", in.Currency)
	return v.Err()
}

// normalizeTimes converts the window to UTC.
func (in *Input) normalizeTimes() {
	in.StartAt = in.StartAt.UTC()
	in.EndAt = in.EndAt.UTC()
}

// resolve fills the participant snapshots of a from in. Unchanged
// references keep their snapshot.
func (s *Service) resolve(ctx context.Context, tenantID string, a *Appointment, in *Input) error {
	if in.PatientID != nil {
		if !sameID(a.PatientID, in.PatientID) || a.PatientName == "" {
			name, err := s.patients.PatientName(ctx, tenantID, *in.PatientID)
			if err != nil {
				return err
			}
			a.PatientName = name
		}
		a.PatientID = cloneUUID(in.PatientID)
		a.ProspectName, a.ProspectPhone, a.ProspectEmail = "", "", ""
	} else {
		a.PatientID, a.PatientName = nil, ""
		a.ProspectName, a.ProspectPhone, a.ProspectEmail = in.ProspectName, in.ProspectPhone, in.ProspectEmail
	}
	return s.resolveDoctor(ctx, tenantID, a, in.DoctorID)
}

func (s *Service) resolveDoctor(ctx context.Context, tenantID string, a *Appointment, doctorID *uuid.UUID) error {
	if doctorID == nil {
		a.DoctorID, a.DoctorName = nil, ""
		return nil
	}
	if !sameID(a.DoctorID, doctorID) || a.DoctorName == "" {
		name, err := s.doctors.DoctorName(ctx, tenantID, *doctorID)
		if err != nil {
			return err
		}
		a.DoctorName = name
	}
	a.DoctorID = cloneUUID(doctorID)
	return nil
}

func lockKey(tenantID string, doctorID uuid.UUID) string {
	return fmt.Sprintf("%s:doctor:%s", tenantID, doctorID)
}

// reserve runs write while a's doctor is locked and free for a's window.
// Appointments without a doctor, or that do not block the calendar, skip the
// check.
func (s *Service) reserve(ctx context.Context, tenantID string, a *Appointment, write func(ctx context.Context) error) error {
	if a.DoctorID == nil || !a.Status.BlocksCalendar() {
		return s.translateWrite(write(ctx))
	}
	doctorID := *a.DoctorID
	err := s.locker.WithLock(ctx, lockKey(tenantID, doctorID), func(ctx context.Context) error {
		clashes, err := s.repo.Conflicting(ctx, tenantID, doctorID, a.StartAt, a.EndAt, a.ID)
		if err != nil {
			return err
		}
		if len(clashes) > 0 {
			c := clashes[0]
			return apperr.Newf(apperr.DoctorUnavailable,
				"doctor already has appointment %s from %s to %s",
				c.ID, c.StartAt.Format(time.RFC3339), c.EndAt.Format(time.RFC3339))
		}
		return s.translateWrite(write(ctx))
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		s.logger.Warn().Str("tenant_id", tenantID).Str("doctor_id", doctorID.String()).
			Msg("doctor calendar lock contended")
		return apperr.New(apperr.SchedulingBusy, "the doctor's calendar is being changed, retry shortly")
	}
	return err
}

func (s *Service) translateWrite(err error) error {
	if db.IsExclusionViolation(err) {
		return apperr.New(apperr.DoctorUnavailable, "doctor already has an appointment in this window")
	}
	return err
}

// ScheduleAppointment books a new appointment.
func (s *Service) ScheduleAppointment(ctx context.Context, tenantID string, in Input) (*Appointment, error) {
	in.normalizeTimes()
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	a := &Appointment{
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Notes:       in.Notes,
		StartAt:     in.StartAt,
		EndAt:       in.EndAt,
		Status:      StatusScheduled,
		Fee:         in.Fee,
		Currency:    in.Currency,
	}
	if in.Status != "" {
		a.Status = in.Status
	}
	if err := s.resolve(ctx, tenantID, a, &in); err != nil {
		return nil, err
	}
	// Reserve the id so the conflict query can exclude it consistently.
	a.ID = uuid.New()

	err := s.reserve(ctx, tenantID, a, func(ctx context.Context) error {
		return s.repo.Add(ctx, tenantID, a)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("appointment_id", a.ID.String()).Msg("appointment scheduled")
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, notFound(id)
	}
	return a, nil
}

// ReferenceAppointment checks an appointment that another record of tenantID
// is about to point at.
func (s *Service) ReferenceAppointment(ctx context.Context, tenantID string, id uuid.UUID) (*Reference, error) {
	a, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.IsDeleted() {
		return nil, notFound(id)
	}
	if a.TenantID != tenantID {
		return nil, apperr.Newf(apperr.CrossTenantReference, "appointment %s belongs to another tenant", id)
	}
	name := a.PatientName
	if a.IsProspect() {
		name = a.ProspectName
	}
	return &Reference{
		ID:          a.ID,
		PatientID:   cloneUUID(a.PatientID),
		DoctorID:    cloneUUID(a.DoctorID),
		PatientName: name,
		DoctorName:  a.DoctorName,
		StartAt:     a.StartAt,
		Status:      a.Status,
		Fee:         a.Fee,
		Currency:    a.Currency,
	}, nil
}

func (s *Service) SearchAppointments(ctx context.Context, tenantID string, f Filter) ([]*Appointment, int, error) {
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

func (s *Service) CountAppointments(ctx context.Context, tenantID string, f Filter) (int, error) {
	return s.repo.Count(ctx, tenantID, f)
}

func (s *Service) save(ctx context.Context, tenantID string, a *Appointment) error {
	return s.reserve(ctx, tenantID, a, func(ctx context.Context) error {
		ok, err := s.repo.Update(ctx, tenantID, a)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(a.ID)
		}
		return nil
	})
}

// UpdateAppointment replaces the editable fields of an appointment. A status
// change must be a valid transition.
func (s *Service) UpdateAppointment(ctx context.Context, tenantID string, id uuid.UUID, in Input) (*Appointment, error) {
	in.normalizeTimes()
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	a, err := s.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, apperr.Newf(apperr.InvalidStatusTransition, "a %s appointment cannot be edited", a.Status)
	}
	if in.Status != "" && in.Status != a.Status {
		if !a.Status.CanTransition(in.Status) {
			return nil, transitionErr(a.Status, in.Status)
		}
		a.Status = in.Status
	}
	if err := s.resolve(ctx, tenantID, a, &in); err != nil {
		return nil, err
	}
	a.Title = in.Title
	a.Description = in.Description
	a.Location = in.Location
	a.Notes = in.Notes
	a.StartAt = in.StartAt
	a.EndAt = in.EndAt
	a.Fee = in.Fee
	a.Currency = in.Currency

	if err := s.save(ctx, tenantID, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RescheduleAppointment moves an open appointment to a new window and,
// optionally, another doctor.
func (s *Service) RescheduleAppointment(ctx context.Context, tenantID string, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	if err := checkWindow(in.StartAt, in.EndAt); err != nil {
		return nil, err
	}
	a, err := s.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, apperr.Newf(apperr.InvalidStatusTransition, "a %s appointment cannot be rescheduled", a.Status)
	}
	if in.DoctorID != nil {
		if err := s.resolveDoctor(ctx, tenantID, a, in.DoctorID); err != nil {
			return nil, err
		}
	}
	a.StartAt = in.StartAt.UTC()
	a.EndAt = in.EndAt.UTC()

	if err := s.save(ctx, tenantID, a); err != nil {
		return nil, err
	}
	return a, nil
}

func transitionErr(from, to Status) error {
	return apperr.Newf(apperr.InvalidStatusTransition, "cannot move appointment from %s to %s", from, to)
}

// ChangeStatus applies a status transition.
func (s *Service) ChangeStatus(ctx context.Context, tenantID string, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, apperr.Newf(apperr.InvalidStatus, "unknown appointment status %q", status)
	}
	a, err := s.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransition(status) {
		return nil, transitionErr(a.Status, status)
	}
	a.Status = status
	ok, err := s.repo.Update(ctx, tenantID, a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(id)
	}
	return a, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, tenantID string, id uuid.UUID) error {
	ok, err := s.repo.SoftDelete(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id)
	}
	return nil
}

// RestoreAppointment brings back a deleted appointment. Its window must still
// be free on the doctor's calendar.
func (s *Service) RestoreAppointment(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.TenantID != tenantID || !a.IsDeleted() {
		return nil, apperr.Newf(apperr.AppointmentNotFound, "deleted appointment %s not found", id)
	}
	err = s.reserve(ctx, tenantID, a, func(ctx context.Context) error {
		ok, err := s.repo.Restore(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Newf(apperr.AppointmentNotFound, "deleted appointment %s not found", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("appointment_id", id.String()).Msg("appointment restored")
	return s.GetAppointment(ctx, tenantID, id)
}
