package repository

import (
	"context"
	"errors"
	"time"

	"authz-service/internal/apperrors"
	"authz-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.ServiceAccount) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceAccount, error) {
	var account models.ServiceAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return &account, nil
}

func (r *AccountRepository) GetByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error) {
	var account models.ServiceAccount
	err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return &account, nil
}

func (r *AccountRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.ServiceAccount, error) {
	var accounts []models.ServiceAccount
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&accounts).Error
	if err != nil {
		return nil, wrapDBError(err)
	}
	return accounts, nil
}

// Disable deactivates the account and bumps token_version in one statement,
// so outstanding tokens die together with the credential.
func (r *AccountRepository) Disable(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.ServiceAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":     false,
			"token_version": gorm.Expr("token_version + 1"),
		})
	if result.Error != nil {
		return wrapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("service account")
	}
	return nil
}

// Enable reactivates the account. token_version stays where disable left it,
// so tokens issued before the disable remain invalid.
func (r *AccountRepository) Enable(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.ServiceAccount{}).
		Where("id = ?", id).
		Update("is_active", true)
	if result.Error != nil {
		return wrapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("service account")
	}
	return nil
}

// RevokeTokens bumps token_version without touching is_active.
func (r *AccountRepository) RevokeTokens(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.ServiceAccount{}).
		Where("id = ?", id).
		Update("token_version", gorm.Expr("token_version + 1"))
	if result.Error != nil {
		return wrapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("service account")
	}
	return nil
}

// TouchLastUsed is best effort; failures are logged by the caller, never
// surfaced to the request.
func (r *AccountRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&models.ServiceAccount{}).
		Where("id = ?", id).
		Update("last_used_at", &now).Error
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}
