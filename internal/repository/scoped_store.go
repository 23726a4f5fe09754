package repository

import (
	"context"
	"errors"

	"authz-service/internal/apperrors"
	"authz-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScopedStore is the only way business entities reach the database. Every
// query it builds carries a tenant_id predicate taken from the verified
// request context; rows belonging to other tenants are indistinguishable
// from rows that do not exist.
type ScopedStore[T any, PT interface {
	*T
	models.TenantScoped
}] struct {
	db       *gorm.DB
	resource string
}

func NewScopedStore[T any, PT interface {
	*T
	models.TenantScoped
}](db *gorm.DB, resource string) *ScopedStore[T, PT] {
	return &ScopedStore[T, PT]{db: db, resource: resource}
}

// Query lists the caller's rows. A missing or invalid tenant context yields
// an empty result with no error and no database round trip; it never falls
// back to an unscoped query.
func (s *ScopedStore[T, PT]) Query(ctx context.Context, rc *models.RequestContext) ([]T, error) {
	if !rc.Valid() {
		return []T{}, nil
	}
	var rows []T
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", rc.Tenant.ID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapDBError(err)
	}
	return rows, nil
}

func (s *ScopedStore[T, PT]) Get(ctx context.Context, rc *models.RequestContext, id uuid.UUID) (PT, error) {
	if !rc.Valid() {
		return nil, apperrors.NewNotFound(s.resource)
	}
	var row T
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, rc.Tenant.ID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound(s.resource)
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return PT(&row), nil
}

// Create forces the entity's tenant to the context's tenant. Whatever tenant
// value arrived in the payload is discarded.
func (s *ScopedStore[T, PT]) Create(ctx context.Context, rc *models.RequestContext, entity PT) error {
	if !rc.Valid() {
		return apperrors.NewMissingTenantContext()
	}
	entity.SetTenantID(rc.Tenant.ID)
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// Update re-reads the row under tenant scope before writing. A row owned by
// another tenant surfaces as NotFound; any attempt to move the row between
// tenants is rejected.
func (s *ScopedStore[T, PT]) Update(ctx context.Context, rc *models.RequestContext, id uuid.UUID, entity PT) error {
	if !rc.Valid() {
		return apperrors.NewMissingTenantContext()
	}
	existing, err := s.Get(ctx, rc, id)
	if err != nil {
		return err
	}
	if entity.GetTenantID() != uuid.Nil && entity.GetTenantID() != existing.GetTenantID() {
		return apperrors.NewTenantFieldImmutable()
	}
	entity.SetTenantID(existing.GetTenantID())
	err = s.db.WithContext(ctx).
		Model(entity).
		Where("id = ? AND tenant_id = ?", id, rc.Tenant.ID).
		Updates(entity).Error
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (s *ScopedStore[T, PT]) Delete(ctx context.Context, rc *models.RequestContext, id uuid.UUID) error {
	if !rc.Valid() {
		return apperrors.NewNotFound(s.resource)
	}
	var row T
	result := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, rc.Tenant.ID).
		Delete(&row)
	if result.Error != nil {
		return wrapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound(s.resource)
	}
	return nil
}

// ScopedExistenceChecker answers reference lookups for the cross-tenant
// validator. The query is tenant-scoped like every other read.
type ScopedExistenceChecker struct {
	db *gorm.DB
}

func NewScopedExistenceChecker(db *gorm.DB) *ScopedExistenceChecker {
	return &ScopedExistenceChecker{db: db}
}

func (c *ScopedExistenceChecker) Exists(ctx context.Context, rc *models.RequestContext, table string, id uuid.UUID) (bool, error) {
	if !rc.Valid() {
		return false, nil
	}
	var count int64
	err := c.db.WithContext(ctx).
		Table(table).
		Where("id = ? AND tenant_id = ?", id, rc.Tenant.ID).
		Count(&count).Error
	if err != nil {
		return false, wrapDBError(err)
	}
	return count > 0, nil
}
