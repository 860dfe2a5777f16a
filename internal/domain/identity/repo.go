package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*User, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches case-insensitively among active users of tenantID.
	GetByEmail(ctx context.Context, tenantID, email string) (*User, error)
	GetBySetupDigest(ctx context.Context, tenantID, digest string) (*User, error)
	Search(ctx context.Context, tenantID string, f UserFilter) ([]*User, error)
	Count(ctx context.Context, tenantID string, f UserFilter) (int, error)
	// CountAll counts every user row in every tenant, deleted ones included.
	CountAll(ctx context.Context) (int, error)
	Add(ctx context.Context, tenantID string, u *User) error
	Update(ctx context.Context, tenantID string, u *User) (bool, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
}

// RoleRepository reads roles visible to a tenant: its own plus global ones.
// Writes only touch roles owned by the tenant.
type RoleRepository interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Role, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Role, error)
	GetByName(ctx context.Context, tenantID, name string) (*Role, error)
	Search(ctx context.Context, tenantID string, f RoleFilter) ([]*Role, error)
	Count(ctx context.Context, tenantID string, f RoleFilter) (int, error)
	Add(ctx context.Context, tenantID string, r *Role) error
	Update(ctx context.Context, tenantID string, r *Role) (bool, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)

	// Seeding only.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Role, error)
	InsertRaw(ctx context.Context, r *Role) error
	HardDelete(ctx context.Context, id uuid.UUID) error
}

var userSortColumns = map[string]string{
	"email":   "email",
	"name":    "last_name",
	"created": "created_at",
}

var roleSortColumns = map[string]string{
	"name":    "name",
	"created": "created_at",
}
