package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/validate"
)

var errInvalidCredentials = apperr.New(apperr.InvalidCredentials, "invalid email or password")

// Login verifies credentials and issues an access token. Unknown, deleted
// and inactive accounts are indistinguishable from a wrong password.
func (s *Service) Login(ctx context.Context, tenantID, email, password string) (*LoginResult, error) {
	email = validate.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, errInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, errInvalidCredentials
	}
	if u.PasswordHash == "" {
		return nil, apperr.New(apperr.PasswordSetupRequired, "password has not been set up for this account")
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, errInvalidCredentials
	}

	ro, err := s.roles.GetByID(ctx, tenantID, u.RoleID)
	if err != nil {
		return nil, err
	}
	if ro != nil {
		u.RoleName = ro.Name
	}

	issued, err := s.tokens.Issue(auth.Identity{UserID: u.ID, TenantID: tenantID, Role: u.RoleName, Email: u.Email})
	if err != nil {
		return nil, err
	}

	now := s.now()
	u.LastLoginAt = &now
	if _, err := s.users.Update(ctx, tenantID, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("user_id", u.ID.String()).Msg("user logged in")
	return &LoginResult{IssuedToken: issued, User: u}, nil
}

// Logout revokes the presented token until it expires.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" || s.revocations == nil {
		return nil
	}
	exp := s.now()
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return s.revocations.Revoke(ctx, claims.ID, exp)
}

// userBySetupToken resolves a presented token to its active account.
func (s *Service) userBySetupToken(ctx context.Context, tenantID, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.New(apperr.InvalidSetupToken, "setup token is required")
	}
	u, err := s.users.GetBySetupDigest(ctx, tenantID, auth.DigestSetupToken(token))
	if err != nil {
		return nil, err
	}
	if u == nil || u.SetupTokenExpiresAt == nil {
		return nil, apperr.New(apperr.InvalidSetupToken, "setup token is invalid or already used")
	}
	if !s.now().Before(*u.SetupTokenExpiresAt) {
		return nil, apperr.New(apperr.SetupTokenExpired, "setup token has expired")
	}
	return u, nil
}

func (s *Service) ValidateSetupToken(ctx context.Context, tenantID, token string) (*SetupTokenInfo, error) {
	u, err := s.userBySetupToken(ctx, tenantID, token)
	if err != nil {
		return nil, err
	}
	return &SetupTokenInfo{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		ExpiresAt: *u.SetupTokenExpiresAt,
	}, nil
}

func checkStrength(password string) error {
	if err := auth.CheckPasswordStrength(password); err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return apperr.New(apperr.WeakPassword, err.Error())
		}
		return err
	}
	return nil
}

// CompletePasswordSetup consumes a setup token. The token cannot be used
// again afterwards.
func (s *Service) CompletePasswordSetup(ctx context.Context, tenantID, token, password string) (*User, error) {
	u, err := s.userBySetupToken(ctx, tenantID, token)
	if err != nil {
		return nil, err
	}
	if err := checkStrength(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	u.PasswordConfirmed = true
	u.SetupTokenDigest = ""
	u.SetupTokenExpiresAt = nil
	ok, err := s.users.Update(ctx, tenantID, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, userNotFound(u.ID)
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("user_id", u.ID.String()).Msg("password setup completed")
	return u, nil
}

// ResetPasswordSetup clears the password and sends a fresh setup link. Any
// earlier link stops working.
func (s *Service) ResetPasswordSetup(ctx context.Context, tenantID string, userID uuid.UUID) (*User, error) {
	u, err := s.GetUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	token, err := s.armSetupToken(u)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	u.PasswordConfirmed = false
	ok, err := s.users.Update(ctx, tenantID, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, userNotFound(userID)
	}
	s.sendSetupLink(ctx, tenantID, u, token, notification.TemplatePasswordReset)
	return u, nil
}

// ChangePassword lets a signed-in user replace their own password.
func (s *Service) ChangePassword(ctx context.Context, tenantID string, userID uuid.UUID, current, next string) error {
	u, err := s.GetUser(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(u.PasswordHash, current) {
		return apperr.New(apperr.InvalidCredentials, "current password is incorrect")
	}
	if err := checkStrength(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.PasswordConfirmed = true
	if _, err := s.users.Update(ctx, tenantID, u); err != nil {
		return err
	}
	return nil
}
