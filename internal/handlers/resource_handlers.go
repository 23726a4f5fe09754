package handlers

import (
	"net/http"

	"authz-service/internal/apperrors"
	"authz-service/internal/metrics"
	"authz-service/internal/middleware"
	"authz-service/internal/models"
	"authz-service/internal/repository"
	"authz-service/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ResourceHandlers is the CRUD surface for one tenant-scoped entity type.
// All data access goes through the scoped store and every write with
// declared references passes the cross-tenant validator before persisting.
type ResourceHandlers[T any, PT interface {
	*T
	models.TenantScoped
}] struct {
	store     *repository.ScopedStore[T, PT]
	validator *validator.ReferenceValidator
	metrics   *metrics.Metrics
	resource  string
}

func NewResourceHandlers[T any, PT interface {
	*T
	models.TenantScoped
}](store *repository.ScopedStore[T, PT], refValidator *validator.ReferenceValidator, m *metrics.Metrics, resource string) *ResourceHandlers[T, PT] {
	return &ResourceHandlers[T, PT]{
		store:     store,
		validator: refValidator,
		metrics:   m,
		resource:  resource,
	}
}

func (h *ResourceHandlers[T, PT]) List(c *gin.Context) {
	rc := middleware.GetRequestContext(c)
	rows, err := h.store.Query(c.Request.Context(), rc)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{h.resource + "s": rows})
}

func (h *ResourceHandlers[T, PT]) Get(c *gin.Context) {
	rc := middleware.GetRequestContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, apperrors.NewNotFound(h.resource))
		return
	}

	row, err := h.store.Get(c.Request.Context(), rc, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *ResourceHandlers[T, PT]) Create(c *gin.Context) {
	rc := middleware.GetRequestContext(c)

	var entity T
	if err := c.ShouldBindJSON(&entity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
			"code":  "invalid_request",
		})
		return
	}

	if err := h.validator.ValidateReferences(c.Request.Context(), rc, PT(&entity)); err != nil {
		h.countIsolationDenial(err)
		middleware.AbortWithError(c, err)
		return
	}
	if err := h.store.Create(c.Request.Context(), rc, PT(&entity)); err != nil {
		h.countIsolationDenial(err)
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, PT(&entity))
}

func (h *ResourceHandlers[T, PT]) Update(c *gin.Context) {
	rc := middleware.GetRequestContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, apperrors.NewNotFound(h.resource))
		return
	}

	var entity T
	if err := c.ShouldBindJSON(&entity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
			"code":  "invalid_request",
		})
		return
	}

	if err := h.validator.ValidateReferences(c.Request.Context(), rc, PT(&entity)); err != nil {
		h.countIsolationDenial(err)
		middleware.AbortWithError(c, err)
		return
	}
	if err := h.store.Update(c.Request.Context(), rc, id, PT(&entity)); err != nil {
		h.countIsolationDenial(err)
		middleware.AbortWithError(c, err)
		return
	}

	row, err := h.store.Get(c.Request.Context(), rc, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *ResourceHandlers[T, PT]) Delete(c *gin.Context) {
	rc := middleware.GetRequestContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, apperrors.NewNotFound(h.resource))
		return
	}

	if err := h.store.Delete(c.Request.Context(), rc, id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ResourceHandlers[T, PT]) countIsolationDenial(err error) {
	if apperrors.IsIsolationError(err) {
		h.metrics.IsolationDenials.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
	}
}
