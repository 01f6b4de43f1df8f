package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/mappers"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// UsageResetLogRepositoryImpl implements the usage.ResetLogRepository interface
type UsageResetLogRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.UsageMapper
	logger logger.Interface
}

// NewUsageResetLogRepository creates a new reset log repository instance
func NewUsageResetLogRepository(gdb *gorm.DB, logger logger.Interface) usage.ResetLogRepository {
	return &UsageResetLogRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewUsageMapper(),
		logger: logger,
	}
}

// Create appends a reset audit record
func (r *UsageResetLogRepositoryImpl) Create(ctx context.Context, entity *usage.ResetLog) error {
	model, err := r.mapper.ToResetLogModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map reset log: %w", err)
	}

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create reset log",
			"category", model.Category, "entity_id", model.EntityID, "error", err)
		return fmt.Errorf("failed to create reset log: %w", err)
	}

	return nil
}

// ListByEntity returns the most recent reset records for one entity
func (r *UsageResetLogRepositoryImpl) ListByEntity(ctx context.Context, category usage.Category, entityID uint, limit int) ([]*usage.ResetLog, error) {
	if limit <= 0 {
		limit = 20
	}

	var modelList []*models.UsageResetLogModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("category = ? AND entity_id = ?", category.String(), entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&modelList).Error
	if err != nil {
		r.logger.Errorw("failed to list reset logs",
			"category", category.String(), "entity_id", entityID, "error", err)
		return nil, fmt.Errorf("failed to list reset logs: %w", err)
	}

	return r.mapper.ToResetLogEntities(modelList)
}
