package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"authz-service/internal/apperrors"
	"authz-service/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTenantStore keeps tenants in memory keyed by id.
type fakeTenantStore struct {
	tenants map[uuid.UUID]*models.Tenant
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{tenants: make(map[uuid.UUID]*models.Tenant)}
}

func (s *fakeTenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	tenant.ID = uuid.New()
	s.tenants[tenant.ID] = tenant
	return nil
}

func (s *fakeTenantStore) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	for _, t := range s.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, nil
}

func (s *fakeTenantStore) List(ctx context.Context) ([]models.Tenant, error) {
	var out []models.Tenant
	for _, t := range s.tenants {
		out = append(out, *t)
	}
	return out, nil
}

func (s *fakeTenantStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	t, ok := s.tenants[id]
	if !ok {
		return apperrors.NewNotFound("tenant")
	}
	t.IsActive = active
	return nil
}

// recordingInvalidator captures snapshot invalidation calls.
type recordingInvalidator struct {
	tenantIDs []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, tenantID uuid.UUID, clientID string) {
	r.tenantIDs = append(r.tenantIDs, tenantID)
}

func newTenantTestRouter() (*gin.Engine, *fakeTenantStore, *recordingInvalidator) {
	store := newFakeTenantStore()
	invalidator := &recordingInvalidator{}
	h := NewTenantHandlers(store, invalidator)

	router := gin.New()
	router.POST("/api/v1/tenants", h.Create)
	router.GET("/api/v1/tenants", h.List)
	router.POST("/api/v1/tenants/:id/activate", h.Activate)
	router.POST("/api/v1/tenants/:id/deactivate", h.Deactivate)
	return router, store, invalidator
}

func TestCreateTenant(t *testing.T) {
	router, store, _ := newTenantTestRouter()

	w := postJSON(router, "/api/v1/tenants", `{"slug":"acme","name":"Acme Corp"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	created, err := store.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, created.IsActive)
}

func TestCreateTenantDuplicateSlug(t *testing.T) {
	router, _, _ := newTenantTestRouter()

	w := postJSON(router, "/api/v1/tenants", `{"slug":"acme","name":"Acme Corp"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(router, "/api/v1/tenants", `{"slug":"acme","name":"Another Acme"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "slug_taken", body["code"])
}

func TestCreateTenantMissingFields(t *testing.T) {
	router, _, _ := newTenantTestRouter()

	w := postJSON(router, "/api/v1/tenants", `{"slug":"acme"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTenants(t *testing.T) {
	router, _, _ := newTenantTestRouter()

	w := postJSON(router, "/api/v1/tenants", `{"slug":"acme","name":"Acme Corp"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tenants []models.Tenant `json:"tenants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Tenants, 1)
}

func TestDeactivateTenantInvalidatesSnapshot(t *testing.T) {
	router, store, invalidator := newTenantTestRouter()

	w := postJSON(router, "/api/v1/tenants", `{"slug":"acme","name":"Acme Corp"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	tenant, err := store.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)

	w = postJSON(router, "/api/v1/tenants/"+tenant.ID.String()+"/deactivate", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.False(t, tenant.IsActive)
	require.Len(t, invalidator.tenantIDs, 1)
	assert.Equal(t, tenant.ID, invalidator.tenantIDs[0])
}

func TestActivateTenant(t *testing.T) {
	router, store, invalidator := newTenantTestRouter()

	w := postJSON(router, "/api/v1/tenants", `{"slug":"acme","name":"Acme Corp"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	tenant, err := store.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	tenant.IsActive = false

	w = postJSON(router, "/api/v1/tenants/"+tenant.ID.String()+"/activate", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.True(t, tenant.IsActive)
	assert.Len(t, invalidator.tenantIDs, 1)
}

func TestSetActiveUnknownTenant(t *testing.T) {
	router, _, invalidator := newTenantTestRouter()

	w := postJSON(router, "/api/v1/tenants/"+uuid.New().String()+"/deactivate", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, invalidator.tenantIDs)
}

func TestSetActiveMalformedID(t *testing.T) {
	router, _, _ := newTenantTestRouter()

	w := postJSON(router, "/api/v1/tenants/not-a-uuid/deactivate", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
