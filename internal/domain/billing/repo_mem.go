package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/memstore"
)

type repoMem struct {
	table *memstore.Table[*Billing]
}

// NewRepoMem mirrors the partial unique index on billings: one non-cancelled
// billing per appointment.
func NewRepoMem() Repository {
	t := memstore.NewTable(cloneBilling)
	t.Unique = func(a, b *Billing) bool {
		return a.AppointmentID == b.AppointmentID &&
			a.Status != StatusCancelled && b.Status != StatusCancelled
	}
	return &repoMem{table: t}
}

func (r *repoMem) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Billing, error) {
	b, ok := r.table.Get(tenantID, id)
	if !ok {
		return nil, nil
	}
	return b, nil
}

func (r *repoMem) GetForUpdate(_ context.Context, id uuid.UUID) (*Billing, error) {
	b, ok := r.table.GetAny(id)
	if !ok {
		return nil, nil
	}
	return b, nil
}

func (r *repoMem) GetOpenByAppointment(_ context.Context, tenantID string, appointmentID uuid.UUID) (*Billing, error) {
	items := r.table.Select(tenantID, false, func(b *Billing) bool {
		return b.AppointmentID == appointmentID && b.Status != StatusCancelled
	})
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (f Filter) matches(b *Billing) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Term)); term != "" {
		if !strings.Contains(strings.ToLower(b.PatientName), term) &&
			!strings.Contains(strings.ToLower(b.DoctorName), term) &&
			!strings.Contains(strings.ToLower(b.Notes), term) {
			return false
		}
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.PaymentMethod != "" && b.PaymentMethod != f.PaymentMethod {
		return false
	}
	if f.PatientID != nil && (b.PatientID == nil || *b.PatientID != *f.PatientID) {
		return false
	}
	if f.From != nil && b.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !b.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func lessFor(sort string, desc bool) func(a, b *Billing) bool {
	var less func(a, b *Billing) bool
	switch sort {
	case "amount":
		less = func(a, b *Billing) bool { return a.Amount < b.Amount }
	case "status":
		less = func(a, b *Billing) bool { return a.Status < b.Status }
	case "patient":
		less = func(a, b *Billing) bool { return a.PatientName < b.PatientName }
	case "created":
		less = func(a, b *Billing) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return func(a, b *Billing) bool { return b.CreatedAt.Before(a.CreatedAt) }
	}
	if desc {
		return func(a, b *Billing) bool { return less(b, a) }
	}
	return less
}

func (r *repoMem) Search(_ context.Context, tenantID string, f Filter) ([]*Billing, error) {
	items := r.table.Select(tenantID, f.IncludeDeleted, f.matches)
	skip, take := f.Window()
	return memstore.SortPage(items, lessFor(f.Sort, f.Desc), skip, take), nil
}

func (r *repoMem) Count(_ context.Context, tenantID string, f Filter) (int, error) {
	return len(r.table.Select(tenantID, f.IncludeDeleted, f.matches)), nil
}

func (r *repoMem) Add(_ context.Context, tenantID string, b *Billing) error {
	return r.table.Insert(tenantID, b)
}

func (r *repoMem) Update(_ context.Context, tenantID string, b *Billing) (bool, error) {
	return r.table.Update(tenantID, b)
}

func (r *repoMem) SoftDelete(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.SoftDelete(tenantID, id), nil
}

func (r *repoMem) Restore(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.Restore(tenantID, id)
}

type providerRepoMem struct {
	table *memstore.Table[*InsuranceProvider]
}

func NewProviderRepoMem() ProviderRepository {
	return &providerRepoMem{table: memstore.NewTable(cloneProvider)}
}

func (r *providerRepoMem) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*InsuranceProvider, error) {
	p, ok := r.table.Get(tenantID, id)
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (f ProviderFilter) matches(p *InsuranceProvider) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Term)); term != "" {
		if !strings.Contains(strings.ToLower(p.Name), term) && !strings.Contains(strings.ToLower(p.Code), term) {
			return false
		}
	}
	return f.Active == nil || p.IsActive == *f.Active
}

func (r *providerRepoMem) Search(_ context.Context, tenantID string, f ProviderFilter) ([]*InsuranceProvider, error) {
	items := r.table.Select(tenantID, f.IncludeDeleted, f.matches)
	less := func(a, b *InsuranceProvider) bool { return a.Name < b.Name }
	if f.Sort == "created" {
		less = func(a, b *InsuranceProvider) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	if f.Desc {
		asc := less
		less = func(a, b *InsuranceProvider) bool { return asc(b, a) }
	}
	skip, take := f.Window()
	return memstore.SortPage(items, less, skip, take), nil
}

func (r *providerRepoMem) Count(_ context.Context, tenantID string, f ProviderFilter) (int, error) {
	return len(r.table.Select(tenantID, f.IncludeDeleted, f.matches)), nil
}

func (r *providerRepoMem) Add(_ context.Context, tenantID string, p *InsuranceProvider) error {
	return r.table.Insert(tenantID, p)
}

func (r *providerRepoMem) Update(_ context.Context, tenantID string, p *InsuranceProvider) (bool, error) {
	return r.table.Update(tenantID, p)
}

func (r *providerRepoMem) SoftDelete(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.SoftDelete(tenantID, id), nil
}

func (r *providerRepoMem) Restore(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.Restore(tenantID, id)
}
