package identity

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/record"
	"github.com/clinic/clinic/internal/platform/validate"
)

// Config tunes account onboarding.
type Config struct {
	SetupURL    string
	SetupExpiry time.Duration
}

type Service struct {
	users       UserRepository
	roles       RoleRepository
	hasher      *auth.PasswordHasher
	tokens      *auth.TokenService
	revocations auth.RevocationList
	notifier    *notification.Notifier
	cfg         Config
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(users UserRepository, roles RoleRepository, hasher *auth.PasswordHasher,
	tokens *auth.TokenService, revocations auth.RevocationList, notifier *notification.Notifier,
	cfg Config, logger zerolog.Logger) *Service {
	if cfg.SetupExpiry <= 0 {
		cfg.SetupExpiry = 24 * time.Hour
	}
	return &Service{
		users:       users,
		roles:       roles,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With().Str("component", "identity").Logger(),
		now:         record.Now,
	}
}

func userNotFound(id uuid.UUID) error {
	return apperr.Newf(apperr.UserNotFound, "user %s not found", id)
}

func (s *Service) validateUser(in *UserInput) error {
	in.Email = validate.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	v := validate.New()
	v.Required("first_name", in.FirstName)
	v.Required("last_name", in.LastName)
	v.MaxLen("first_name", in.FirstName, 100)
	v.MaxLen("last_name", in.LastName, 100)
	v.Required("email", in.Email)
	v.Email("email", in.Email)
	v.MaxLen("email", in.Email, 254)
	v.MaxLen("phone", in.Phone, 32)
	v.Check(in.RoleID != uuid.Nil, "role_id", "is required")
	return v.Err()
}

func (s *Service) requireRole(ctx context.Context, tenantID string, id uuid.UUID) (*Role, error) {
	ro, err := s.roles.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ro == nil {
		return nil, apperr.Newf(apperr.RoleNotFound, "role %s not found", id)
	}
	return ro, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, tenantID, email string, self uuid.UUID) error {
	existing, err := s.users.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != self {
		return apperr.Newf(apperr.EmailAlreadyExists, "email %s is already registered", email)
	}
	return nil
}

func translateUserWrite(err error, email string) error {
	if db.IsUniqueViolation(err) {
		return apperr.Newf(apperr.EmailAlreadyExists, "email %s is already registered", email)
	}
	return err
}

// RegisterUser creates an account without a password and sends its owner a
// one-time setup link.
func (s *Service) RegisterUser(ctx context.Context, tenantID string, in UserInput) (*User, error) {
	if err := s.validateUser(&in); err != nil {
		return nil, err
	}
	ro, err := s.requireRole(ctx, tenantID, in.RoleID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, tenantID, in.Email, uuid.Nil); err != nil {
		return nil, err
	}

	u := &User{
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Email:         in.Email,
		Phone:         in.Phone,
		RoleID:        ro.ID,
		Specialty:     in.Specialty,
		LicenseNumber: in.LicenseNumber,
		IsActive:      in.IsActive == nil || *in.IsActive,
	}
	token, err := s.armSetupToken(u)
	if err != nil {
		return nil, err
	}
	if err := s.users.Add(ctx, tenantID, u); err != nil {
		return nil, translateUserWrite(err, u.Email)
	}
	u.RoleName = ro.Name

	s.sendSetupLink(ctx, tenantID, u, token, notification.TemplatePasswordSetup)
	return u, nil
}

// armSetupToken stores a fresh token digest on u, invalidating any earlier
// token, and returns the plaintext token.
func (s *Service) armSetupToken(u *User) (string, error) {
	token, digest, err := auth.NewSetupToken()
	if err != nil {
		return "", err
	}
	exp := s.now().Add(s.cfg.SetupExpiry)
	u.SetupTokenDigest = digest
	u.SetupTokenExpiresAt = &exp
	return token, nil
}

// SetupLink builds the link mailed to the account owner.
func (s *Service) SetupLink(tenantID, token string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("tenant", tenantID)
	sep := "?"
	if strings.Contains(s.cfg.SetupURL, "?") {
		sep = "&"
	}
	return s.cfg.SetupURL + sep + q.Encode()
}

// sendSetupLink never fails the request: an undelivered link can be
// reissued with ResetPasswordSetup.
func (s *Service) sendSetupLink(ctx context.Context, tenantID string, u *User, token, template string) {
	if s.notifier == nil {
		return
	}
	data := map[string]string{
		"name":       u.FullName(),
		"setup_link": s.SetupLink(tenantID, token),
		"expires_at": u.SetupTokenExpiresAt.Format(time.RFC1123),
	}
	if _, err := s.notifier.Notify(ctx, tenantID, template, u.Email, data); err != nil {
		s.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("user_id", u.ID.String()).
			Msg("password setup notification failed")
	}
}

func (s *Service) GetUser(ctx context.Context, tenantID string, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, userNotFound(id)
	}
	return u, nil
}

func (s *Service) SearchUsers(ctx context.Context, tenantID string, f UserFilter) ([]*User, int, error) {
	items, err := s.users.Search(ctx, tenantID, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.users.Count(ctx, tenantID, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) CountUsers(ctx context.Context, tenantID string, f UserFilter) (int, error) {
	return s.users.Count(ctx, tenantID, f)
}

// ListDoctors returns active users holding the Doctor role.
func (s *Service) ListDoctors(ctx context.Context, tenantID string, f UserFilter) ([]*User, int, error) {
	doctor, active := DoctorRoleID, true
	f.RoleID = &doctor
	f.Active = &active
	f.IncludeDeleted = false
	return s.SearchUsers(ctx, tenantID, f)
}

// DoctorName returns the display name of an active doctor of tenantID.
func (s *Service) DoctorName(ctx context.Context, tenantID string, id uuid.UUID) (string, error) {
	u, err := s.users.GetByID(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	if u == nil || !u.IsActive || !u.IsDoctor() {
		return "", apperr.Newf(apperr.DoctorNotFound, "doctor %s not found", id)
	}
	return u.FullName(), nil
}

func (s *Service) UpdateUser(ctx context.Context, tenantID string, id uuid.UUID, in UserInput) (*User, error) {
	if err := s.validateUser(&in); err != nil {
		return nil, err
	}
	u, err := s.GetUser(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	ro, err := s.requireRole(ctx, tenantID, in.RoleID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, tenantID, in.Email, id); err != nil {
		return nil, err
	}

	u.FirstName = in.FirstName
	u.LastName = in.LastName
	u.Email = in.Email
	u.Phone = in.Phone
	u.RoleID = ro.ID
	u.Specialty = in.Specialty
	u.LicenseNumber = in.LicenseNumber
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	ok, err := s.users.Update(ctx, tenantID, u)
	if err != nil {
		return nil, translateUserWrite(err, u.Email)
	}
	if !ok {
		return nil, userNotFound(id)
	}
	u.RoleName = ro.Name
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, tenantID string, id uuid.UUID) error {
	ok, err := s.users.SoftDelete(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return userNotFound(id)
	}
	return nil
}

func (s *Service) RestoreUser(ctx context.Context, tenantID string, id uuid.UUID) (*User, error) {
	ok, err := s.users.Restore(ctx, tenantID, id)
	if err != nil {
		return nil, translateUserWrite(err, "")
	}
	if !ok {
		return nil, apperr.Newf(apperr.UserNotFound, "deleted user %s not found", id)
	}
	return s.GetUser(ctx, tenantID, id)
}
