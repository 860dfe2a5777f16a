package clinical

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/memstore"
)

type repoMem struct {
	table *memstore.Table[*Consultation]
}

func NewRepoMem() Repository {
	return &repoMem{table: memstore.NewTable(cloneConsultation)}
}

func (r *repoMem) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Consultation, error) {
	c, ok := r.table.Get(tenantID, id)
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (r *repoMem) GetForUpdate(_ context.Context, id uuid.UUID) (*Consultation, error) {
	c, ok := r.table.GetAny(id)
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (f Filter) matches(c *Consultation) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Term)); term != "" {
		hit := false
		for _, v := range []string{c.VisitReason, c.Diagnosis, c.PatientName, c.DoctorName} {
			if strings.Contains(strings.ToLower(v), term) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.PatientID != nil && c.PatientID != *f.PatientID {
		return false
	}
	if f.DoctorID != nil && c.DoctorID != *f.DoctorID {
		return false
	}
	if f.From != nil && c.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !c.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func lessFor(sort string, desc bool) func(a, b *Consultation) bool {
	var less func(a, b *Consultation) bool
	switch sort {
	case "created":
		less = func(a, b *Consultation) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "patient":
		less = func(a, b *Consultation) bool { return a.PatientName < b.PatientName }
	default:
		return func(a, b *Consultation) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	if desc {
		return func(a, b *Consultation) bool { return less(b, a) }
	}
	return less
}

func (r *repoMem) Search(_ context.Context, tenantID string, f Filter) ([]*Consultation, error) {
	items := r.table.Select(tenantID, f.IncludeDeleted, f.matches)
	skip, take := f.Window()
	return memstore.SortPage(items, lessFor(f.Sort, f.Desc), skip, take), nil
}

func (r *repoMem) Count(_ context.Context, tenantID string, f Filter) (int, error) {
	return len(r.table.Select(tenantID, f.IncludeDeleted, f.matches)), nil
}

func (r *repoMem) Add(_ context.Context, tenantID string, c *Consultation) error {
	return r.table.Insert(tenantID, c)
}

func (r *repoMem) Update(_ context.Context, tenantID string, c *Consultation) (bool, error) {
	return r.table.Update(tenantID, c)
}

func (r *repoMem) SoftDelete(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.SoftDelete(tenantID, id), nil
}

func (r *repoMem) Restore(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.Restore(tenantID, id)
}
