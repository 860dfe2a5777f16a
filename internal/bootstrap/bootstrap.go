// Package bootstrap prepares a store for serving: schema migrations, the
// fixed role set and the first administrator. Every step is idempotent.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/record"
	"github.com/clinic/clinic/internal/platform/validate"
)

// Migrator applies pending schema migrations. The memory backend has none.
type Migrator interface {
	Up(ctx context.Context) (int, error)
}

// TxRunner runs fn atomically. Postgres passes db.WithTx bound to the pool.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// AdminOptions describe the administrator created on an empty store. A blank
// password is replaced by a generated one.
type AdminOptions struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type Seeder struct {
	roles         identity.RoleRepository
	users         identity.UserRepository
	hasher        *auth.PasswordHasher
	defaultTenant string
	admin         AdminOptions
	inTx          TxRunner
	logger        zerolog.Logger
}

func NewSeeder(roles identity.RoleRepository, users identity.UserRepository, hasher *auth.PasswordHasher,
	defaultTenant string, admin AdminOptions, inTx TxRunner, logger zerolog.Logger) *Seeder {
	if inTx == nil {
		inTx = noTx
	}
	return &Seeder{
		roles:         roles,
		users:         users,
		hasher:        hasher,
		defaultTenant: defaultTenant,
		admin:         admin,
		inTx:          inTx,
		logger:        logger.With().Str("component", "bootstrap").Logger(),
	}
}

// RoleChanges summarizes one reconciliation.
type RoleChanges struct {
	Inserted  int
	Replaced  int
	Unchanged int
}

// Result reports what Run changed.
type Result struct {
	Migrations int
	Roles      RoleChanges
	Admin      *identity.User
	// GeneratedPassword is set only when the admin password was generated.
	GeneratedPassword string
}

// Run migrates (when m is set), reconciles the fixed roles and creates the
// default administrator if no user exists yet.
func Run(ctx context.Context, m Migrator, s *Seeder) (*Result, error) {
	res := &Result{}
	if m != nil {
		n, err := m.Up(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		res.Migrations = n
	}
	changes, err := s.ReconcileRoles(ctx)
	if err != nil {
		return nil, err
	}
	res.Roles = changes

	admin, password, err := s.EnsureDefaultAdmin(ctx)
	if err != nil {
		return nil, err
	}
	res.Admin, res.GeneratedPassword = admin, password
	return res, nil
}

// ReconcileRoles makes the stored fixed roles equal to identity.FixedRoles.
// Differing rows are deleted and re-inserted, missing rows inserted, matching
// rows left alone.
func (s *Seeder) ReconcileRoles(ctx context.Context) (RoleChanges, error) {
	var changes RoleChanges
	desired := identity.FixedRoles(s.defaultTenant)
	ids := make([]uuid.UUID, len(desired))
	for i, r := range desired {
		ids[i] = r.ID
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		actual, err := s.roles.ListByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("load roles: %w", err)
		}
		byID := make(map[uuid.UUID]*identity.Role, len(actual))
		for _, r := range actual {
			byID[r.ID] = r
		}

		for _, want := range desired {
			have, ok := byID[want.ID]
			switch {
			case ok && want.SameDefinition(have):
				changes.Unchanged++
				continue
			case ok:
				if err := s.roles.HardDelete(ctx, have.ID); err != nil {
					return fmt.Errorf("replace role %s: %w", want.Name, err)
				}
				changes.Replaced++
			default:
				changes.Inserted++
			}
			now := record.Now()
			want.CreatedAt, want.UpdatedAt = now, now
			if err := s.roles.InsertRaw(ctx, want); err != nil {
				return fmt.Errorf("insert role %s: %w", want.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return RoleChanges{}, err
	}
	if changes.Inserted > 0 || changes.Replaced > 0 {
		s.logger.Info().Int("inserted", changes.Inserted).Int("replaced", changes.Replaced).Msg("fixed roles reconciled")
	}
	return changes, nil
}

// EnsureDefaultAdmin creates the administrator of the default tenant when the
// store has no user at all, deleted ones included. It returns nil when
// nothing was created. The password is returned only if it was generated.
func (s *Seeder) EnsureDefaultAdmin(ctx context.Context) (*identity.User, string, error) {
	n, err := s.users.CountAll(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil, "", nil
	}

	email := validate.NormalizeEmail(s.admin.Email)
	if email == "" {
		email = "admin@clinic.local"
	}
	password, generated := s.admin.Password, ""
	if password == "" {
		if password, err = auth.RandomPassword(); err != nil {
			return nil, "", err
		}
		generated = password
	} else if err := auth.CheckPasswordStrength(password); err != nil {
		return nil, "", fmt.Errorf("DEFAULT_ADMIN_PASSWORD: %w", err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", err
	}

	u := &identity.User{
		FirstName:         s.admin.FirstName,
		LastName:          s.admin.LastName,
		Email:             email,
		RoleID:            identity.AdministratorRoleID,
		IsActive:          true,
		PasswordConfirmed: true,
		PasswordHash:      hash,
	}
	if err := s.users.Add(ctx, s.defaultTenant, u); err != nil {
		return nil, "", fmt.Errorf("create default admin: %w", err)
	}

	ev := s.logger.Warn().Str("tenant_id", s.defaultTenant).Str("email", email)
	if generated != "" {
		ev = ev.Str("password", generated)
	}
	ev.Msg("default administrator created")
	return u, generated, nil
}
