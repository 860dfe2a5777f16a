package billing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Billing, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Billing, error)
	// GetOpenByAppointment returns the active, non-cancelled billing of an
	// appointment, or nil.
	GetOpenByAppointment(ctx context.Context, tenantID string, appointmentID uuid.UUID) (*Billing, error)
	Search(ctx context.Context, tenantID string, f Filter) ([]*Billing, error)
	Count(ctx context.Context, tenantID string, f Filter) (int, error)
	Add(ctx context.Context, tenantID string, b *Billing) error
	Update(ctx context.Context, tenantID string, b *Billing) (bool, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
}

type ProviderRepository interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*InsuranceProvider, error)
	Search(ctx context.Context, tenantID string, f ProviderFilter) ([]*InsuranceProvider, error)
	Count(ctx context.Context, tenantID string, f ProviderFilter) (int, error)
	Add(ctx context.Context, tenantID string, p *InsuranceProvider) error
	Update(ctx context.Context, tenantID string, p *InsuranceProvider) (bool, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
}

var sortColumns = map[string]string{
	"created": "created_at",
	"amount":  "amount",
	"status":  "status",
	"patient": "patient_name",
}

var providerSortColumns = map[string]string{
	"name":    "name",
	"created": "created_at",
}
