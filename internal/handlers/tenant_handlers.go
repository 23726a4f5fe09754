package handlers

import (
	"context"
	"net/http"

	"authz-service/internal/apperrors"
	"authz-service/internal/middleware"
	"authz-service/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TenantStore is the slice of the tenant repository the handlers need.
type TenantStore interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// SnapshotInvalidator drops cached state after an administrative change.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID, clientID string)
}

// TenantHandlers covers the administrative tenant surface. Tenants are
// created by operators only; after creation the only mutable field is
// is_active.
type TenantHandlers struct {
	tenants   TenantStore
	snapshots SnapshotInvalidator
}

func NewTenantHandlers(tenants TenantStore, snapshots SnapshotInvalidator) *TenantHandlers {
	return &TenantHandlers{tenants: tenants, snapshots: snapshots}
}

type CreateTenantRequest struct {
	Slug string `json:"slug" binding:"required,min=2,max=63"`
	Name string `json:"name" binding:"required,min=2,max=255"`
}

func (h *TenantHandlers) Create(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "slug and name are required",
			"code":  "invalid_request",
		})
		return
	}

	existing, err := h.tenants.GetBySlug(c.Request.Context(), req.Slug)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": "tenant slug already in use",
			"code":  "slug_taken",
		})
		return
	}

	tenant := &models.Tenant{
		Slug:     req.Slug,
		Name:     req.Name,
		IsActive: true,
	}
	if err := h.tenants.Create(c.Request.Context(), tenant); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tenant)
}

func (h *TenantHandlers) List(c *gin.Context) {
	tenants, err := h.tenants.List(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants})
}

func (h *TenantHandlers) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *TenantHandlers) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *TenantHandlers) setActive(c *gin.Context, active bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, apperrors.NewNotFound("tenant"))
		return
	}
	if err := h.tenants.SetActive(c.Request.Context(), id, active); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	// Drop the cached snapshot so the new state is seen before its TTL.
	if h.snapshots != nil {
		h.snapshots.Invalidate(c.Request.Context(), id, "")
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}
