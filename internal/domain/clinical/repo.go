package clinical

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Consultation, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Search(ctx context.Context, tenantID string, f Filter) ([]*Consultation, error)
	Count(ctx context.Context, tenantID string, f Filter) (int, error)
	Add(ctx context.Context, tenantID string, c *Consultation) error
	Update(ctx context.Context, tenantID string, c *Consultation) (bool, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
}

var sortColumns = map[string]string{
	"created": "created_at",
	"patient": "patient_name",
}
