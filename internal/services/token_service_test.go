package services

import (
	"context"
	"testing"
	"time"

	"authz-service/internal/apperrors"
	"authz-service/internal/cache"
	"authz-service/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSnapshotSource serves fixed tenant and account state, with optional
// error injection.
type fakeSnapshotSource struct {
	tenant  *models.Tenant
	account *models.ServiceAccount
	err     error
}

func (f *fakeSnapshotSource) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.tenant == nil || f.tenant.ID != id {
		return nil, nil
	}
	return f.tenant, nil
}

func (f *fakeSnapshotSource) GetAccountByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.account == nil || f.account.ClientID != clientID {
		return nil, nil
	}
	return f.account, nil
}

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:       uuid.New(),
		Slug:     "acme",
		Name:     "Acme Corp",
		IsActive: true,
	}
}

func testAccount(tenantID uuid.UUID) *models.ServiceAccount {
	return &models.ServiceAccount{
		ID:           uuid.New(),
		ClientID:     "client_0123456789abcdef01234567",
		TenantID:     tenantID,
		IsActive:     true,
		TokenVersion: 1,
		Roles:        models.StringArray{"admin"},
		Scopes:       models.StringArray{"read:projects", "write:projects"},
	}
}

func newTestTokenService(source SnapshotSource) *TokenService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewTokenService(
		"access-secret", "refresh-secret",
		15*time.Minute, 168*time.Hour,
		"authz-service", "authz-service", false,
		source, nil, logger,
	)
}

func TestIssueAndVerify(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	rc, err := svc.Verify(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, rc.Tenant.ID)
	assert.Equal(t, account.ClientID, rc.Account.ClientID)
	assert.True(t, rc.HasRole("admin"))
	assert.True(t, rc.HasScope("read:projects"))
	assert.False(t, rc.HasScope("write:documents"))
}

func TestVerifyRejectsRefreshToken(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	// A refresh token must never pass access verification, even before
	// the token_type check: it is signed with a different secret.
	_, err = svc.Verify(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthenticationError(err))
}

func TestVerifyGarbageToken(t *testing.T) {
	svc := newTestTokenService(&fakeSnapshotSource{})

	_, err := svc.Verify(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidSignature, apperrors.CodeOf(err))
}

func TestVerifyExpiredToken(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	svc := NewTokenService(
		"access-secret", "refresh-secret",
		-1*time.Minute, 168*time.Hour,
		"authz-service", "authz-service", false,
		&fakeSnapshotSource{tenant: tenant, account: account}, nil, logger,
	)

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTokenExpired, apperrors.CodeOf(err))
}

func TestVerifyRevokedAfterVersionBump(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	source := &fakeSnapshotSource{tenant: tenant, account: account}
	svc := newTestTokenService(source)

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	// Revocation bumps the stored version; the embedded claim no longer
	// matches.
	account.TokenVersion = 2

	_, err = svc.Verify(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRevokedToken, apperrors.CodeOf(err))
}

func TestVerifyDisabledPrincipal(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	account.IsActive = false

	_, err = svc.Verify(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDisabledPrincipal, apperrors.CodeOf(err))
}

func TestVerifyInactiveTenant(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	tenant.IsActive = false

	_, err = svc.Verify(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInactiveTenant, apperrors.CodeOf(err))
}

func TestVerifyUnknownTenant(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnknownTenant, apperrors.CodeOf(err))
}

func TestVerifyUnknownPrincipal(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnknownPrincipal, apperrors.CodeOf(err))
}

func TestVerifyAccountFromOtherTenant(t *testing.T) {
	tenant := testTenant()
	account := testAccount(uuid.New())
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnknownPrincipal, apperrors.CodeOf(err))
}

func TestVerifyMissingTenantClaim(t *testing.T) {
	svc := newTestTokenService(&fakeSnapshotSource{})

	// Hand-build an otherwise valid access token without a tenant claim.
	now := time.Now()
	claims := &Claims{
		ClientID:     "client_0123456789abcdef01234567",
		ClientType:   "service_account",
		TokenVersion: 1,
		TokenType:    "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "authz-service",
			Audience:  jwt.ClaimStrings{"authz-service"},
			Subject:   "client_0123456789abcdef01234567",
			ID:        uuid.New().String(),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMissingTenantClaim, apperrors.CodeOf(err))
}

func TestRefresh(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	// Rotation is off: no new refresh token.
	assert.Empty(t, refreshed.RefreshToken)

	rc, err := svc.Verify(context.Background(), refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ClientID, rc.Account.ClientID)
}

func newRotatingTokenService(source SnapshotSource) *TokenService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewTokenService(
		"access-secret", "refresh-secret",
		15*time.Minute, 168*time.Hour,
		"authz-service", "authz-service", true,
		source, cache.NewRefreshDenylist(nil, logger), logger,
	)
}

func TestRefreshRotation(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newRotatingTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.RefreshToken)

	// The rotated refresh token is itself usable.
	_, err = svc.Refresh(context.Background(), refreshed.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRotationInvalidatesPresentedToken(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newRotatingTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	// The presented token is spent: a replay is rejected even though it
	// has not expired and the account's token_version is unchanged.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRevokedToken, apperrors.CodeOf(err))

	// The replacement token still works.
	_, err = svc.Refresh(context.Background(), refreshed.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthenticationError(err))
}

func TestRefreshAfterRevocation(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	svc := newTestTokenService(&fakeSnapshotSource{tenant: tenant, account: account})

	pair, err := svc.Issue(account, tenant)
	require.NoError(t, err)

	account.TokenVersion = 2

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRevokedToken, apperrors.CodeOf(err))
}
