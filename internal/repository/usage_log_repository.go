package repository

import (
	"context"

	"authz-service/internal/models"
	"gorm.io/gorm"
)

// UsageLogRepository is append-only. Nothing on the grant/deny path reads it.
type UsageLogRepository struct {
	db *gorm.DB
}

func NewUsageLogRepository(db *gorm.DB) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

func (r *UsageLogRepository) Create(ctx context.Context, entry *models.UsageLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}
