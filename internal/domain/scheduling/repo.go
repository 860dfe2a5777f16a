package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Search(ctx context.Context, tenantID string, f Filter) ([]*Appointment, error)
	Count(ctx context.Context, tenantID string, f Filter) (int, error)
	// Conflicting returns the active, non-cancelled appointments of doctorID
	// intersecting [start, end), other than exclude.
	Conflicting(ctx context.Context, tenantID string, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*Appointment, error)
	Add(ctx context.Context, tenantID string, a *Appointment) error
	Update(ctx context.Context, tenantID string, a *Appointment) (bool, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
}

var sortColumns = map[string]string{
	"start":   "start_at",
	"created": "created_at",
	"status":  "status",
}
