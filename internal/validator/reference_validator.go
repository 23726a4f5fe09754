package validator

import (
	"context"

	"authz-service/internal/apperrors"
	"authz-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ExistenceChecker answers whether a row exists within the caller's tenant.
type ExistenceChecker interface {
	Exists(ctx context.Context, rc *models.RequestContext, table string, id uuid.UUID) (bool, error)
}

// ReferenceValidator rejects writes whose foreign keys point at rows the
// caller's tenant cannot see. Because the lookup itself is tenant-scoped, a
// reference to another tenant's row and a reference to a nonexistent row
// fail identically; nothing leaks about other tenants' data.
type ReferenceValidator struct {
	checker ExistenceChecker
	logger  *logrus.Logger
}

func NewReferenceValidator(checker ExistenceChecker, logger *logrus.Logger) *ReferenceValidator {
	return &ReferenceValidator{checker: checker, logger: logger}
}

// ValidateReferences checks every declared reference on the entity. It runs
// before persistence; on failure nothing has been written.
func (v *ReferenceValidator) ValidateReferences(ctx context.Context, rc *models.RequestContext, entity interface{}) error {
	referencing, ok := entity.(models.Referencing)
	if !ok {
		return nil
	}
	if !rc.Valid() {
		return apperrors.NewMissingTenantContext()
	}

	for _, ref := range referencing.References() {
		if ref.ID == uuid.Nil {
			continue
		}
		exists, err := v.checker.Exists(ctx, rc, ref.Table, ref.ID)
		if err != nil {
			return err
		}
		if !exists {
			v.logger.WithFields(logrus.Fields{
				"tenant_id":      rc.Tenant.ID,
				"field":          ref.Field,
				"correlation_id": rc.CorrelationID,
			}).Warn("Cross-tenant reference rejected")
			return apperrors.NewCrossTenantReference(ref.Field)
		}
	}
	return nil
}
