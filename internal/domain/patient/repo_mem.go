package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/memstore"
)

type repoMem struct {
	table *memstore.Table[*Patient]
}

// NewRepoMem returns a process-local repository.
func NewRepoMem() Repository {
	return &repoMem{table: memstore.NewTable(clonePatient)}
}

func (r *repoMem) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	p, ok := r.table.Get(tenantID, id)
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (r *repoMem) GetForUpdate(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := r.table.GetAny(id)
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (r *repoMem) Search(_ context.Context, tenantID string, f Filter) ([]*Patient, error) {
	items := r.table.Select(tenantID, f.IncludeDeleted, f.matches)
	skip, take := f.Window()
	return memstore.SortPage(items, lessFor(f.Sort, f.Desc), skip, take), nil
}

func (r *repoMem) Count(_ context.Context, tenantID string, f Filter) (int, error) {
	return len(r.table.Select(tenantID, f.IncludeDeleted, f.matches)), nil
}

func (r *repoMem) Add(_ context.Context, tenantID string, p *Patient) error {
	return r.table.Insert(tenantID, p)
}

func (r *repoMem) Update(_ context.Context, tenantID string, p *Patient) (bool, error) {
	return r.table.Update(tenantID, p)
}

func (r *repoMem) SoftDelete(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.SoftDelete(tenantID, id), nil
}

func (r *repoMem) Restore(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.Restore(tenantID, id)
}

func (f Filter) matches(p *Patient) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Term)); term != "" {
		hit := false
		for _, v := range []string{p.FirstName, p.LastName, p.Email, p.Phone, p.DocumentNumber} {
			if strings.Contains(strings.ToLower(v), term) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.Gender != "" && p.Gender != f.Gender {
		return false
	}
	if f.BornFrom != nil || f.BornTo != nil {
		if p.DateOfBirth == nil {
			return false
		}
		if f.BornFrom != nil && p.DateOfBirth.Before(*f.BornFrom) {
			return false
		}
		if f.BornTo != nil && !p.DateOfBirth.Before(*f.BornTo) {
			return false
		}
	}
	if f.CreatedFrom != nil && p.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !p.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	return true
}

func lessFor(sortKey string, desc bool) func(a, b *Patient) bool {
	var less func(a, b *Patient) bool
	switch sortKey {
	case "birth":
		less = func(a, b *Patient) bool {
			if a.DateOfBirth == nil || b.DateOfBirth == nil {
				return a.DateOfBirth != nil
			}
			return a.DateOfBirth.Before(*b.DateOfBirth)
		}
	case "created":
		less = func(a, b *Patient) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		less = func(a, b *Patient) bool {
			if a.LastName != b.LastName {
				return a.LastName < b.LastName
			}
			return a.FirstName < b.FirstName
		}
		if _, ok := sortColumns[sortKey]; !ok {
			desc = false
		}
	}
	if desc {
		return func(a, b *Patient) bool { return less(b, a) }
	}
	return less
}
