package services

import (
	"context"
	"testing"
	"time"

	"authz-service/internal/apperrors"
	"authz-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySource fails the first N tenant lookups with an infrastructure error,
// then serves normally.
type flakySource struct {
	fakeSnapshotSource
	failures int
	calls    int
}

func (f *flakySource) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, apperrors.NewStoreUnavailable(context.DeadlineExceeded)
	}
	return f.fakeSnapshotSource.GetTenant(ctx, id)
}

func newTestResolver(source SnapshotSource) *Resolver {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewResolver(newTestTokenService(source), logger, 5*time.Second)
}

func TestResolveBearerMissingHeader(t *testing.T) {
	resolver := newTestResolver(&fakeSnapshotSource{})

	for _, header := range []string{
		"",
		"Bearer",
		"Bearer ",
		"Basic dXNlcjpwYXNz",
		"sometoken",
	} {
		_, err := resolver.ResolveBearer(context.Background(), header)
		require.Error(t, err, "header %q", header)
		assert.Equal(t, apperrors.CodeMissingToken, apperrors.CodeOf(err), "header %q", header)
	}
}

func TestResolveBearerSuccess(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	source := &fakeSnapshotSource{tenant: tenant, account: account}
	resolver := newTestResolver(source)

	pair, err := newTestTokenService(source).Issue(account, tenant)
	require.NoError(t, err)

	rc, err := resolver.ResolveBearer(context.Background(), "Bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, rc.Valid())
	assert.Equal(t, tenant.ID, rc.Tenant.ID)

	// Case-insensitive scheme.
	rc, err = resolver.ResolveBearer(context.Background(), "bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ClientID, rc.Account.ClientID)
}

func TestResolveBearerRetriesInfrastructureFailure(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	source := &flakySource{
		fakeSnapshotSource: fakeSnapshotSource{tenant: tenant, account: account},
		failures:           1,
	}
	resolver := newTestResolver(source)

	pair, err := newTestTokenService(source).Issue(account, tenant)
	require.NoError(t, err)

	rc, err := resolver.ResolveBearer(context.Background(), "Bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, rc.Tenant.ID)
	assert.Equal(t, 2, source.calls)
}

func TestResolveBearerRetriesOnlyOnce(t *testing.T) {
	tenant := testTenant()
	account := testAccount(tenant.ID)
	source := &flakySource{
		fakeSnapshotSource: fakeSnapshotSource{tenant: tenant, account: account},
		failures:           5,
	}
	resolver := newTestResolver(source)

	pair, err := newTestTokenService(source).Issue(account, tenant)
	require.NoError(t, err)

	_, err = resolver.ResolveBearer(context.Background(), "Bearer "+pair.AccessToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsInfrastructureError(err))
	assert.Equal(t, 2, source.calls)
}

func TestResolveBearerDoesNotRetryAuthFailure(t *testing.T) {
	resolver := newTestResolver(&fakeSnapshotSource{})

	_, err := resolver.ResolveBearer(context.Background(), "Bearer not-a-token")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidSignature, apperrors.CodeOf(err))
}
