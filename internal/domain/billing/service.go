package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lock"
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
	providers    ProviderRepository
	patients     PatientDirectory
	doctors      DoctorDirectory
	appointments AppointmentRefs
	locker       lock.Locker
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(repo Repository, providers ProviderRepository, patients PatientDirectory, doctors DoctorDirectory,
	appointments AppointmentRefs, locker lock.Locker, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocalLocker(0)
	}
	return &Service{
		repo:         repo,
		providers:    providers,
		patients:     patients,
		doctors:      doctors,
		appointments: appointments,
		locker:       locker,
		logger:       logger.With().Str("component", "billing").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func notFound(id uuid.UUID) error {
	return apperr.Newf(apperr.BillingNotFound, "billing %s not found", id)
}

func providerNotFound(id uuid.UUID) error {
	return apperr.Newf(apperr.InsuranceProviderNotFound, "insurance provider %s not found", id)
}

func (s *Service) locked(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, key, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		s.logger.Warn().Str("lock", key).Msg("billing lock contended")
		return apperr.New(apperr.SchedulingBusy, "the billing is being changed, retry shortly")
	}
	return err
}

func translateWrite(err error) error {
	if db.IsUniqueViolation(err) {
		return apperr.New(apperr.BillingAlreadyExists, "the appointment already has an active billing")
	}
	return err
}

// normalize defaults the amount and currency from the appointment and checks
// the payment split.
func (s *Service) normalize(ctx context.Context, tenantID string, in *Input, ref *scheduling.Reference) error {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = ref.Currency
	}
	if in.Currency == "" {
		in.Currency = scheduling.DefaultCurrency
	}
	if cents(in.Amount) == 0 {
		in.Amount = ref.Fee
	}
	if !in.UsesInsurance && cents(in.CoverageAmount) == 0 && cents(in.CopayAmount) == 0 {
		in.CopayAmount = in.Amount
	}

	v := validate.New()
	v.Required("payment_method", string(in.PaymentMethod))
	v.OneOf("payment_method", string(in.PaymentMethod), validMethods)
	v.Check(cents(in.Amount) > 0, "amount", "must be positive")
	v.Currency("currency", in.Currency)
	v.Check(in.CoverageAmount >= 0, "coverage_amount", "must not be negative")
	v.Check(in.CopayAmount >= 0, "copay_amount", "must not be negative")
	v.MaxLen("notes", in.Notes, 2000)
	if in.UsesInsurance {
		v.Check(in.InsuranceProviderID != nil, "insurance_provider_id", "is required when uses_insurance is set")
		v.Check(cents(in.CoverageAmount)+cents(in.CopayAmount) == cents(in.Amount),
			"coverage_amount", "plus copay_amount must equal amount")
	} else {
		v.Check(cents(in.CoverageAmount) == 0, "coverage_amount", "must be zero without insurance")
		v.Check(cents(in.CopayAmount) == cents(in.Amount), "copay_amount", "must equal amount without insurance")
	}
	if err := v.Err(); err != nil {
		return err
	}
	if in.UsesInsurance {
		p, err := s.providers.GetByID(ctx, tenantID, *in.InsuranceProviderID)
		if err != nil {
			return err
		}
		if p == nil {
			return providerNotFound(*in.InsuranceProviderID)
		}
		if !p.IsActive {
			return apperr.Validation("insurance_provider_id refers to inactive provider %s", p.Name)
		}
	} else {
		in.InsuranceProviderID = nil
	}
	return nil
}

// resolve fills the participants of b, taking them from the appointment when
// in leaves them out.
func (s *Service) resolve(ctx context.Context, tenantID string, b *Billing, in Input, ref *scheduling.Reference) error {
	switch {
	case in.PatientID != nil:
		if ref.PatientID != nil && *ref.PatientID != *in.PatientID {
			return apperr.Validation("patient_id does not match the appointment's patient")
		}
		name, err := s.patients.PatientName(ctx, tenantID, *in.PatientID)
		if err != nil {
			return err
		}
		b.PatientID, b.PatientName = cloneUUID(in.PatientID), name
	default:
		b.PatientID, b.PatientName = cloneUUID(ref.PatientID), ref.PatientName
	}
	switch {
	case in.DoctorID != nil:
		name, err := s.doctors.DoctorName(ctx, tenantID, *in.DoctorID)
		if err != nil {
			return err
		}
		b.DoctorID, b.DoctorName = cloneUUID(in.DoctorID), name
	default:
		b.DoctorID, b.DoctorName = cloneUUID(ref.DoctorID), ref.DoctorName
	}
	return nil
}

func (b *Billing) apply(in Input) {
	b.PaymentMethod = in.PaymentMethod
	b.Amount = in.Amount
	b.Currency = in.Currency
	b.UsesInsurance = in.UsesInsurance
	b.InsuranceProviderID = cloneUUID(in.InsuranceProviderID)
	b.CoverageAmount = in.CoverageAmount
	b.CopayAmount = in.CopayAmount
	b.Notes = in.Notes
}

func appointmentKey(tenantID string, id uuid.UUID) string {
	return fmt.Sprintf("%s:billing-appointment:%s", tenantID, id)
}

func billingKey(tenantID string, id uuid.UUID) string {
	return fmt.Sprintf("%s:billing:%s", tenantID, id)
}

// CreateBilling raises a Pending billing for an appointment of tenantID.
func (s *Service) CreateBilling(ctx context.Context, tenantID string, in Input) (*Billing, error) {
	if in.AppointmentID == uuid.Nil {
		return nil, apperr.Validation("appointment_id is required")
	}
	ref, err := s.appointments.ReferenceAppointment(ctx, tenantID, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.normalize(ctx, tenantID, &in, ref); err != nil {
		return nil, err
	}
	b := &Billing{AppointmentID: ref.ID, Status: StatusPending}
	if err := s.resolve(ctx, tenantID, b, in, ref); err != nil {
		return nil, err
	}
	b.apply(in)

	err = s.locked(ctx, appointmentKey(tenantID, ref.ID), func(ctx context.Context) error {
		existing, err := s.repo.GetOpenByAppointment(ctx, tenantID, ref.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Newf(apperr.BillingAlreadyExists, "appointment %s already has billing %s", ref.ID, existing.ID)
		}
		return translateWrite(s.repo.Add(ctx, tenantID, b))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("billing_id", b.ID.String()).
		Str("appointment_id", ref.ID.String()).Msg("billing created")
	return b, nil
}

func (s *Service) GetBilling(ctx context.Context, tenantID string, id uuid.UUID) (*Billing, error) {
	b, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, notFound(id)
	}
	return b, nil
}

func (s *Service) SearchBillings(ctx context.Context, tenantID string, f Filter) ([]*Billing, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Newf(apperr.InvalidStatus, "unknown billing status %q", f.Status)
	}
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

func (s *Service) CountBillings(ctx context.Context, tenantID string, f Filter) (int, error) {
	return s.repo.Count(ctx, tenantID, f)
}

func (s *Service) save(ctx context.Context, tenantID string, b *Billing) error {
	ok, err := s.repo.Update(ctx, tenantID, b)
	if err != nil {
		return translateWrite(err)
	}
	if !ok {
		return notFound(b.ID)
	}
	return nil
}

// forUpdate loads a billing of tenantID under its lock.
func (s *Service) forUpdate(ctx context.Context, tenantID string, id uuid.UUID, fn func(ctx context.Context, b *Billing) error) error {
	return s.locked(ctx, billingKey(tenantID, id), func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b == nil || b.TenantID != tenantID || b.IsDeleted() {
			return notFound(id)
		}
		return fn(ctx, b)
	})
}

// UpdateBilling edits a billing that has not been paid into yet. The
// appointment cannot change.
func (s *Service) UpdateBilling(ctx context.Context, tenantID string, id uuid.UUID, in Input) (*Billing, error) {
	var out *Billing
	err := s.forUpdate(ctx, tenantID, id, func(ctx context.Context, b *Billing) error {
		if b.Status != StatusPending {
			return apperr.Newf(apperr.InvalidStatusTransition, "a %s billing cannot be edited", b.Status)
		}
		if in.AppointmentID != uuid.Nil && in.AppointmentID != b.AppointmentID {
			return apperr.Validation("appointment_id cannot be changed")
		}
		ref, err := s.appointments.ReferenceAppointment(ctx, tenantID, b.AppointmentID)
		if err != nil {
			return err
		}
		if err := s.normalize(ctx, tenantID, &in, ref); err != nil {
			return err
		}
		if err := s.resolve(ctx, tenantID, b, in, ref); err != nil {
			return err
		}
		b.apply(in)
		out = b
		return s.save(ctx, tenantID, b)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PaymentInput records money received against a billing.
type PaymentInput struct {
	Amount        float64       `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// RecordPayment adds a payment to an open billing. Paying the balance in full
// settles it.
func (s *Service) RecordPayment(ctx context.Context, tenantID string, id uuid.UUID, in PaymentInput) (*Billing, error) {
	v := validate.New()
	v.Check(cents(in.Amount) > 0, "amount", "must be positive")
	v.OneOf("payment_method", string(in.PaymentMethod), validMethods)
	if err := v.Err(); err != nil {
		return nil, err
	}
	var out *Billing
	err := s.forUpdate(ctx, tenantID, id, func(ctx context.Context, b *Billing) error {
		if !b.Status.Open() {
			return apperr.Newf(apperr.InvalidStatusTransition, "a %s billing does not accept payments", b.Status)
		}
		paid := cents(b.PaidAmount) + cents(in.Amount)
		if paid > cents(b.Amount) {
			return apperr.Validation("amount %.2f exceeds the outstanding balance %.2f", in.Amount, b.Balance())
		}
		b.PaidAmount = fromCents(paid)
		if in.PaymentMethod != "" {
			b.PaymentMethod = in.PaymentMethod
		}
		if paid == cents(b.Amount) {
			b.Status = StatusPaid
			now := s.now()
			b.PaidAt = &now
		} else {
			b.Status = StatusPartiallyPaid
		}
		out = b
		return s.save(ctx, tenantID, b)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("billing_id", id.String()).
		Str("status", string(out.Status)).Msg("payment recorded")
	return out, nil
}

// CancelBilling closes an open billing. The appointment may then be billed
// again.
func (s *Service) CancelBilling(ctx context.Context, tenantID string, id uuid.UUID) (*Billing, error) {
	var out *Billing
	err := s.forUpdate(ctx, tenantID, id, func(ctx context.Context, b *Billing) error {
		if !b.Status.Open() {
			return apperr.Newf(apperr.InvalidStatusTransition, "a %s billing cannot be cancelled", b.Status)
		}
		b.Status = StatusCancelled
		out = b
		return s.save(ctx, tenantID, b)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) DeleteBilling(ctx context.Context, tenantID string, id uuid.UUID) error {
	ok, err := s.repo.SoftDelete(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id)
	}
	return nil
}

// RestoreBilling brings back a deleted billing. An open or paid billing
// returns only while its appointment has no other live billing.
func (s *Service) RestoreBilling(ctx context.Context, tenantID string, id uuid.UUID) (*Billing, error) {
	deleted := apperr.Newf(apperr.BillingNotFound, "deleted billing %s not found", id)
	b, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil || b.TenantID != tenantID || !b.IsDeleted() {
		return nil, deleted
	}
	err = s.locked(ctx, appointmentKey(tenantID, b.AppointmentID), func(ctx context.Context) error {
		if b.Status != StatusCancelled {
			existing, err := s.repo.GetOpenByAppointment(ctx, tenantID, b.AppointmentID)
			if err != nil {
				return err
			}
			if existing != nil {
				return apperr.Newf(apperr.BillingAlreadyExists, "appointment %s already has billing %s", b.AppointmentID, existing.ID)
			}
		}
		ok, err := s.repo.Restore(ctx, tenantID, id)
		if err != nil {
			return translateWrite(err)
		}
		if !ok {
			return deleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("billing_id", id.String()).Msg("billing restored")
	return s.GetBilling(ctx, tenantID, id)
}

func validateProvider(in *ProviderInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Email = validate.NormalizeEmail(in.Email)
	v := validate.New()
	v.Required("name", in.Name)
	v.MaxLen("name", in.Name, 200)
	v.MaxLen("code", in.Code, 32)
	v.MaxLen("phone", in.Phone, 32)
	v.Email("email", in.Email)
	v.MaxLen("website", in.Website, 500)
	return v.Err()
}

func (p *InsuranceProvider) apply(in ProviderInput) {
	p.Name = in.Name
	p.Code = in.Code
	p.Phone = in.Phone
	p.Email = in.Email
	p.Website = in.Website
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// CreateProvider registers an insurance provider. New providers are active
// unless is_active is false.
func (s *Service) CreateProvider(ctx context.Context, tenantID string, in ProviderInput) (*InsuranceProvider, error) {
	if err := validateProvider(&in); err != nil {
		return nil, err
	}
	p := &InsuranceProvider{IsActive: true}
	p.apply(in)
	if err := s.providers.Add(ctx, tenantID, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, tenantID string, id uuid.UUID) (*InsuranceProvider, error) {
	p, err := s.providers.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, providerNotFound(id)
	}
	return p, nil
}

func (s *Service) SearchProviders(ctx context.Context, tenantID string, f ProviderFilter) ([]*InsuranceProvider, int, error) {
	items, err := s.providers.Search(ctx, tenantID, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.providers.Count(ctx, tenantID, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) UpdateProvider(ctx context.Context, tenantID string, id uuid.UUID, in ProviderInput) (*InsuranceProvider, error) {
	if err := validateProvider(&in); err != nil {
		return nil, err
	}
	p, err := s.GetProvider(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	p.apply(in)
	ok, err := s.providers.Update(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, providerNotFound(id)
	}
	return p, nil
}

// DeleteProvider soft-deletes a provider. Existing billings keep their
// reference.
func (s *Service) DeleteProvider(ctx context.Context, tenantID string, id uuid.UUID) error {
	ok, err := s.providers.SoftDelete(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return providerNotFound(id)
	}
	return nil
}

func (s *Service) RestoreProvider(ctx context.Context, tenantID string, id uuid.UUID) (*InsuranceProvider, error) {
	ok, err := s.providers.Restore(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.InsuranceProviderNotFound, "deleted insurance provider %s not found", id)
	}
	return s.GetProvider(ctx, tenantID, id)
}
