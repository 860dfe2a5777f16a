package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetByID returns the active patient of tenantID, or nil.
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error)
	// GetForUpdate ignores tenant and lifecycle.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error)
	Search(ctx context.Context, tenantID string, f Filter) ([]*Patient, error)
	Count(ctx context.Context, tenantID string, f Filter) (int, error)
	Add(ctx context.Context, tenantID string, p *Patient) error
	Update(ctx context.Context, tenantID string, p *Patient) (bool, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
}

var sortColumns = map[string]string{
	"name":    "last_name",
	"birth":   "date_of_birth",
	"created": "created_at",
}
