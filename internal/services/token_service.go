package services

import (
	"context"
	"errors"
	"time"

	"authz-service/internal/apperrors"
	"authz-service/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SnapshotSource resolves current tenant and account state during token
// verification. Backed by the bounded-staleness cache in production.
type SnapshotSource interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetAccountByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error)
}

// RefreshDenylist rejects refresh tokens that were rotated out before their
// natural expiry.
type RefreshDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Claims is the strongly typed token payload. Required claims are validated
// for presence and shape before any semantic check runs.
type Claims struct {
	ClientID     string   `json:"client_id"`
	ClientType   string   `json:"client_type"`
	TenantID     string   `json:"tenant_id"`
	TenantSlug   string   `json:"tenant_slug"`
	Roles        []string `json:"roles"`
	Scopes       []string `json:"scopes"`
	TokenVersion int      `json:"token_version"`
	TokenType    string   `json:"token_type"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type TokenService struct {
	accessSecret  string
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	rotateRefresh bool
	snapshots     SnapshotSource
	denylist      RefreshDenylist
	logger        *logrus.Logger
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer, audience string, rotateRefresh bool, snapshots SnapshotSource, denylist RefreshDenylist, logger *logrus.Logger) *TokenService {
	return &TokenService{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        issuer,
		audience:      audience,
		rotateRefresh: rotateRefresh,
		snapshots:     snapshots,
		denylist:      denylist,
		logger:        logger,
	}
}

// Issue generates an access/refresh token pair for a verified account. The
// account's current token_version is embedded so a later revocation
// invalidates the pair without a key change.
func (s *TokenService) Issue(account *models.ServiceAccount, tenant *models.Tenant) (*TokenPair, error) {
	now := time.Now()

	accessToken, err := s.sign(account, tenant, "access", now, s.accessTTL, s.accessSecret)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.sign(account, tenant, "refresh", now, s.refreshTTL, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

func (s *TokenService) sign(account *models.ServiceAccount, tenant *models.Tenant, tokenType string, now time.Time, ttl time.Duration, secret string) (string, error) {
	claims := &Claims{
		ClientID:     account.ClientID,
		ClientType:   "service_account",
		TenantID:     tenant.ID.String(),
		TenantSlug:   tenant.Slug,
		Roles:        account.Roles,
		Scopes:       account.Scopes,
		TokenVersion: account.TokenVersion,
		TokenType:    tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   account.ClientID,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Verify parses an access token and re-resolves the principal and tenant
// against current state. Signature and claim-shape checks run before any
// lookup; a token whose token_version no longer matches is revoked.
func (s *TokenService) Verify(ctx context.Context, rawToken string) (*models.RequestContext, error) {
	claims, err := s.parse(rawToken, s.accessSecret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "access" {
		return nil, apperrors.NewInvalidSignature()
	}
	return s.resolve(ctx, claims)
}

// Refresh verifies a refresh token end to end and issues a new access
// token. When rotation is enabled a fresh refresh token is returned and the
// presented one is denylisted for its remaining lifetime; token_version is
// untouched either way, account-wide revocation stays version-based.
func (s *TokenService) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	claims, err := s.parse(rawToken, s.refreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "refresh" {
		return nil, apperrors.NewInvalidSignature()
	}

	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, apperrors.NewRevokedToken()
		}
	}

	rc, err := s.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	accessToken, err := s.sign(rc.Account, rc.Tenant, "access", now, s.accessTTL, s.accessSecret)
	if err != nil {
		return nil, err
	}
	pair := &TokenPair{
		AccessToken:     accessToken,
		TokenType:       "Bearer",
		AccessExpiresAt: now.Add(s.accessTTL),
	}
	if s.rotateRefresh {
		refreshToken, err := s.sign(rc.Account, rc.Tenant, "refresh", now, s.refreshTTL, s.refreshSecret)
		if err != nil {
			return nil, err
		}
		if s.denylist != nil && claims.ExpiresAt != nil {
			if err := s.denylist.Revoke(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
				return nil, err
			}
		}
		pair.RefreshToken = refreshToken
		pair.RefreshExpiresAt = now.Add(s.refreshTTL)
	}
	return pair, nil
}

func (s *TokenService) parse(rawToken, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(rawToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.NewTokenExpired()
		}
		return nil, apperrors.NewInvalidSignature()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.NewInvalidSignature()
	}
	if claims.TenantID == "" {
		return nil, apperrors.NewMissingTenantClaim()
	}
	if claims.ClientID == "" || claims.TokenType == "" || claims.TokenVersion < 1 {
		return nil, apperrors.NewInvalidSignature()
	}
	return claims, nil
}

func (s *TokenService) resolve(ctx context.Context, claims *Claims) (*models.RequestContext, error) {
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, apperrors.NewMissingTenantClaim()
	}

	tenant, err := s.snapshots.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, apperrors.NewUnknownTenant()
	}
	if !tenant.IsActive {
		return nil, apperrors.NewInactiveTenant()
	}

	account, err := s.snapshots.GetAccountByClientID(ctx, claims.ClientID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.NewUnknownPrincipal()
	}
	if account.TenantID != tenant.ID {
		return nil, apperrors.NewUnknownPrincipal()
	}
	if !account.IsActive {
		return nil, apperrors.NewDisabledPrincipal()
	}
	if claims.TokenVersion != account.TokenVersion {
		return nil, apperrors.NewRevokedToken()
	}

	// Roles and scopes come from the claims: they describe what the token
	// was issued for. Revocation via token_version is the invalidation path
	// when grants change.
	return &models.RequestContext{
		Tenant:  tenant,
		Account: account,
		Roles:   claims.Roles,
		Scopes:  claims.Scopes,
	}, nil
}
