package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/domain/service"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/mappers"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// ServiceRepositoryImpl implements the service.Repository interface
type ServiceRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.ServiceMapper
	logger logger.Interface
}

// NewServiceRepository creates a new service repository instance
func NewServiceRepository(gdb *gorm.DB, logger logger.Interface) service.Repository {
	return &ServiceRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewServiceMapper(),
		logger: logger,
	}
}

// Create creates a new service
func (r *ServiceRepositoryImpl) Create(ctx context.Context, entity *service.Service) error {
	model, err := r.mapper.ToModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map service entity: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return apperrors.NewConflictError("service name already taken")
		}
		r.logger.Errorw("failed to create service", "name", model.Name, "error", err)
		return fmt.Errorf("failed to create service: %w", err)
	}

	if err := entity.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set service ID: %w", err)
	}

	r.logger.Infow("service created", "id", model.ID, "name", model.Name)
	return nil
}

// GetByID retrieves a service by ID
func (r *ServiceRepositoryImpl) GetByID(ctx context.Context, id uint) (*service.Service, error) {
	var model models.ServiceModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("service not found")
		}
		r.logger.Errorw("failed to get service", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// GetAll returns every service
func (r *ServiceRepositoryImpl) GetAll(ctx context.Context) ([]*service.Service, error) {
	var modelList []*models.ServiceModel
	if err := r.db.WithContext(ctx).Order("id").Find(&modelList).Error; err != nil {
		r.logger.Errorw("failed to list services", "error", err)
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// Update persists all mutable fields of the service
func (r *ServiceRepositoryImpl) Update(ctx context.Context, entity *service.Service) error {
	model, err := r.mapper.ToModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map service entity: %w", err)
	}

	result := r.db.WithContext(ctx).Model(&models.ServiceModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"name":       model.Name,
			"updated_at": model.UpdatedAt,
		})
	if result.Error != nil {
		if apperrors.IsDuplicateError(result.Error) {
			return apperrors.NewConflictError("service name already taken")
		}
		r.logger.Errorw("failed to update service", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update service: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("service not found")
	}

	return nil
}

// IncrementUsage atomically adds effective traffic to the rolling counter
func (r *ServiceRepositoryImpl) IncrementUsage(ctx context.Context, id uint, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Model(&models.ServiceModel{}).
		Where("id = ?", id).
		Update("used_traffic", gorm.Expr("used_traffic + ?", amount))
	if result.Error != nil {
		r.logger.Errorw("failed to increment service usage", "id", id, "error", result.Error)
		return fmt.Errorf("failed to increment service usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("service not found")
	}

	return nil
}

// ResetUsage zeroes the rolling counter and returns the previous value
func (r *ServiceRepositoryImpl) ResetUsage(ctx context.Context, id uint) (uint64, error) {
	var prev uint64
	err := db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model models.ServiceModel
		if err := tx.First(&model, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("service not found")
			}
			return fmt.Errorf("failed to load service: %w", err)
		}

		prev = model.UsedTraffic

		return tx.Model(&models.ServiceModel{}).
			Where("id = ?", id).
			Update("used_traffic", 0).Error
	})
	if err != nil {
		r.logger.Errorw("failed to reset service usage", "id", id, "error", err)
		return 0, err
	}

	return prev, nil
}

// Delete removes the service and its admin links
func (r *ServiceRepositoryImpl) Delete(ctx context.Context, id uint) error {
	err := db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_id = ?", id).Delete(&models.AdminServiceLinkModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete service links: %w", err)
		}

		result := tx.Delete(&models.ServiceModel{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete service: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFoundError("service not found")
		}

		return nil
	})
	if err != nil {
		r.logger.Errorw("failed to delete service", "id", id, "error", err)
		return err
	}

	r.logger.Infow("service deleted", "id", id)
	return nil
}
