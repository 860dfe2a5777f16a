package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/record"
)

// Fixed identifiers of the seeded roles.
var (
	AdministratorRoleID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	DoctorRoleID        = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	PatientRoleID       = uuid.MustParse("00000000-0000-0000-0000-000000000003")
)

// Role maps to the roles table. Global roles are visible to every tenant.
type Role struct {
	record.Record
	Name        string `json:"name"`
	Description string `json:"description"`
	IsGlobal    bool   `json:"is_global"`
}

func cloneRole(r *Role) *Role {
	c := *r
	return &c
}

// FixedRoles returns the desired state of the seeded roles, owned by
// ownerTenant.
func FixedRoles(ownerTenant string) []*Role {
	mk := func(id uuid.UUID, name, desc string) *Role {
		return &Role{
			Record:      record.Record{ID: id, TenantID: ownerTenant},
			Name:        name,
			Description: desc,
			IsGlobal:    true,
		}
	}
	return []*Role{
		mk(AdministratorRoleID, auth.RoleAdministrator, "Full access to every tenant resource"),
		mk(DoctorRoleID, auth.RoleDoctor, "Clinical staff: patients, appointments and consultations"),
		mk(PatientRoleID, auth.RolePatient, "Patient portal access"),
	}
}

// IsFixedRole reports whether id is one of the seeded roles.
func IsFixedRole(id uuid.UUID) bool {
	return id == AdministratorRoleID || id == DoctorRoleID || id == PatientRoleID
}

// SameDefinition compares the seeded attributes of two roles.
func (r *Role) SameDefinition(o *Role) bool {
	return r.Name == o.Name && r.Description == o.Description && r.IsGlobal == o.IsGlobal &&
		r.TenantID == o.TenantID && !o.IsDeleted()
}

// User maps to the users table. Secrets never leave the service.
type User struct {
	record.Record
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone,omitempty"`
	RoleID              uuid.UUID  `json:"role_id"`
	RoleName            string     `json:"role_name,omitempty"`
	Specialty           string     `json:"specialty,omitempty"`
	LicenseNumber       string     `json:"license_number,omitempty"`
	IsActive            bool       `json:"is_active"`
	PasswordConfirmed   bool       `json:"password_confirmed"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	PasswordHash        string     `json:"-"`
	SetupTokenDigest    string     `json:"-"`
	SetupTokenExpiresAt *time.Time `json:"-"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsDoctor reports whether the user holds the seeded Doctor role.
func (u *User) IsDoctor() bool { return u.RoleID == DoctorRoleID }

func cloneUser(u *User) *User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	if u.SetupTokenExpiresAt != nil {
		t := *u.SetupTokenExpiresAt
		c.SetupTokenExpiresAt = &t
	}
	return &c
}

// UserInput is the writable profile of a user.
type UserInput struct {
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	RoleID        uuid.UUID `json:"role_id"`
	Specialty     string    `json:"specialty"`
	LicenseNumber string    `json:"license_number"`
	IsActive      *bool     `json:"is_active"`
}

// UserFilter narrows a user search. Term matches names and email.
type UserFilter struct {
	record.Query
	RoleID *uuid.UUID
	Active *bool
}

// RoleInput is the writable part of a role.
type RoleInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleFilter narrows a role search. Term matches name and description.
type RoleFilter struct {
	record.Query
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	*auth.IssuedToken
	User *User `json:"user"`
}

// SetupTokenInfo describes the account a valid setup token belongs to.
type SetupTokenInfo struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	ExpiresAt time.Time `json:"expires_at"`
}
