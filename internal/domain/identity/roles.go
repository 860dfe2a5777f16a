package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/validate"
)

func roleNotFound(id uuid.UUID) error {
	return apperr.Newf(apperr.RoleNotFound, "role %s not found", id)
}

func validateRole(in *RoleInput) error {
	in.Name = strings.TrimSpace(in.Name)
	v := validate.New()
	v.Required("name", in.Name)
	v.MaxLen("name", in.Name, 64)
	v.MaxLen("description", in.Description, 256)
	return v.Err()
}

// ListRoles returns the tenant's roles together with the global ones.
func (s *Service) ListRoles(ctx context.Context, tenantID string, f RoleFilter) ([]*Role, int, error) {
	items, err := s.roles.Search(ctx, tenantID, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.roles.Count(ctx, tenantID, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) GetRole(ctx context.Context, tenantID string, id uuid.UUID) (*Role, error) {
	ro, err := s.roles.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ro == nil {
		return nil, roleNotFound(id)
	}
	return ro, nil
}

func (s *Service) ensureRoleNameFree(ctx context.Context, tenantID, name string, self uuid.UUID) error {
	existing, err := s.roles.GetByName(ctx, tenantID, name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != self {
		return apperr.Newf(apperr.RoleAlreadyExists, "role %q already exists", name)
	}
	return nil
}

func translateRoleWrite(err error, name string) error {
	if db.IsUniqueViolation(err) {
		return apperr.Newf(apperr.RoleAlreadyExists, "role %q already exists", name)
	}
	return err
}

// CreateRole adds a tenant-owned role. Global roles only come from seeding.
func (s *Service) CreateRole(ctx context.Context, tenantID string, in RoleInput) (*Role, error) {
	if err := validateRole(&in); err != nil {
		return nil, err
	}
	if err := s.ensureRoleNameFree(ctx, tenantID, in.Name, uuid.Nil); err != nil {
		return nil, err
	}
	ro := &Role{Name: in.Name, Description: in.Description}
	if err := s.roles.Add(ctx, tenantID, ro); err != nil {
		return nil, translateRoleWrite(err, in.Name)
	}
	return ro, nil
}

func (s *Service) UpdateRole(ctx context.Context, tenantID string, id uuid.UUID, in RoleInput) (*Role, error) {
	if IsFixedRole(id) {
		return nil, apperr.New(apperr.RoleProtected, "built-in roles cannot be modified")
	}
	if err := validateRole(&in); err != nil {
		return nil, err
	}
	ro, err := s.GetRole(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureRoleNameFree(ctx, tenantID, in.Name, id); err != nil {
		return nil, err
	}
	ro.Name = in.Name
	ro.Description = in.Description
	ok, err := s.roles.Update(ctx, tenantID, ro)
	if err != nil {
		return nil, translateRoleWrite(err, in.Name)
	}
	if !ok {
		return nil, roleNotFound(id)
	}
	return ro, nil
}

func (s *Service) DeleteRole(ctx context.Context, tenantID string, id uuid.UUID) error {
	if IsFixedRole(id) {
		return apperr.New(apperr.RoleProtected, "built-in roles cannot be deleted")
	}
	ok, err := s.roles.SoftDelete(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return roleNotFound(id)
	}
	return nil
}
