package bootstrap

import (
	"context"
	"fmt"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/db"
)

// Registrar registers users through the identity service.
type Registrar interface {
	RegisterUser(ctx context.Context, tenantID string, in identity.UserInput) (*identity.User, error)
}

// ProvisionTenant opens a tenant by registering its first administrator. The
// account receives a password-setup link like any other new user.
func ProvisionTenant(ctx context.Context, users Registrar, tenantID string, admin AdminOptions) (*identity.User, error) {
	if !db.ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant id %q", tenantID)
	}
	return users.RegisterUser(ctx, tenantID, identity.UserInput{
		FirstName: admin.FirstName,
		LastName:  admin.LastName,
		Email:     admin.Email,
		RoleID:    identity.AdministratorRoleID,
	})
}
