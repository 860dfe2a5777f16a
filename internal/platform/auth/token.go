package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ClockSkew is the leeway granted to exp, nbf and iat checks.
const ClockSkew = time.Minute

type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	Expiry     time.Duration
}

// Identity is what a token asserts about its bearer.
type Identity struct {
	UserID   uuid.UUID
	TenantID string
	Role     string
	Email    string
}

// IssuedToken is a signed access token with its metadata.
type IssuedToken struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	JTI       string    `json:"-"`
}

// TokenService signs and validates HS256 access tokens.
type TokenService struct {
	cfg JWTConfig
	now func() time.Time
}

func NewTokenService(cfg JWTConfig) *TokenService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 8 * time.Hour
	}
	return &TokenService{cfg: cfg, now: time.Now}
}

// Issue signs a token for id.
func (s *TokenService) Issue(id Identity) (*IssuedToken, error) {
	if len(s.cfg.SigningKey) == 0 {
		return nil, errors.New("jwt signing key not configured")
	}
	now := s.now().UTC()
	exp := now.Add(s.cfg.Expiry)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   id.UserID.String(),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID: id.TenantID,
		Role:     id.Role,
		Email:    id.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &IssuedToken{Token: signed, TokenType: "Bearer", ExpiresAt: exp, JTI: jti}, nil
}

// Parse validates signature, method, issuer, audience and expiry (with
// ClockSkew leeway) and returns the claims.
func (s *TokenService) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TenantID == "" || claims.Subject == "" {
		return nil, errors.New("token missing tenant or subject")
	}
	return claims, nil
}

// Identity decodes the subject of validated claims.
func (c *Claims) Identity() (Identity, error) {
	uid, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject: %w", err)
	}
	return Identity{UserID: uid, TenantID: c.TenantID, Role: c.Role, Email: c.Email}, nil
}
