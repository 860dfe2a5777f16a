package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/memstore"
)

type repoMem struct {
	table *memstore.Table[*Appointment]
}

func NewRepoMem() Repository {
	return &repoMem{table: memstore.NewTable(cloneAppointment)}
}

func (r *repoMem) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	a, ok := r.table.Get(tenantID, id)
	if !ok {
		return nil, nil
	}
	return a, nil
}

func (r *repoMem) GetForUpdate(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := r.table.GetAny(id)
	if !ok {
		return nil, nil
	}
	return a, nil
}

func sameID(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

func (f Filter) matches(a *Appointment) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Term)); term != "" {
		found := false
		for _, v := range []string{a.Title, a.PatientName, a.ProspectName, a.DoctorName} {
			if strings.Contains(strings.ToLower(v), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.DoctorID != nil && !sameID(a.DoctorID, f.DoctorID) {
		return false
	}
	if f.PatientID != nil && !sameID(a.PatientID, f.PatientID) {
		return false
	}
	if f.From != nil && !a.EndAt.After(*f.From) {
		return false
	}
	if f.To != nil && !a.StartAt.Before(*f.To) {
		return false
	}
	return true
}

func lessFor(sort string, desc bool) func(a, b *Appointment) bool {
	var less func(a, b *Appointment) bool
	switch sort {
	case "created":
		less = func(a, b *Appointment) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "status":
		less = func(a, b *Appointment) bool { return a.Status < b.Status }
	case "start":
		less = func(a, b *Appointment) bool { return a.StartAt.Before(b.StartAt) }
	default:
		return func(a, b *Appointment) bool { return a.StartAt.Before(b.StartAt) }
	}
	if desc {
		return func(a, b *Appointment) bool { return less(b, a) }
	}
	return less
}

func (r *repoMem) Search(_ context.Context, tenantID string, f Filter) ([]*Appointment, error) {
	items := r.table.Select(tenantID, f.IncludeDeleted, f.matches)
	skip, take := f.Window()
	return memstore.SortPage(items, lessFor(f.Sort, f.Desc), skip, take), nil
}

func (r *repoMem) Count(_ context.Context, tenantID string, f Filter) (int, error) {
	return len(r.table.Select(tenantID, f.IncludeDeleted, f.matches)), nil
}

func (r *repoMem) Conflicting(_ context.Context, tenantID string, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*Appointment, error) {
	items := r.table.Select(tenantID, false, func(a *Appointment) bool {
		return a.ID != exclude && sameID(a.DoctorID, &doctorID) &&
			a.Status.BlocksCalendar() && a.Overlaps(start, end)
	})
	return memstore.SortPage(items, lessFor("", false), 0, 0), nil
}

func (r *repoMem) Add(_ context.Context, tenantID string, a *Appointment) error {
	return r.table.Insert(tenantID, a)
}

func (r *repoMem) Update(_ context.Context, tenantID string, a *Appointment) (bool, error) {
	return r.table.Update(tenantID, a)
}

func (r *repoMem) SoftDelete(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.SoftDelete(tenantID, id), nil
}

func (r *repoMem) Restore(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.Restore(tenantID, id)
}
