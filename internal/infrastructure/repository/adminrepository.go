package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/mappers"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// AdminRepositoryImpl implements the admin.Repository interface
type AdminRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.AdminMapper
	logger logger.Interface
}

// NewAdminRepository creates a new admin repository instance
func NewAdminRepository(gdb *gorm.DB, logger logger.Interface) admin.Repository {
	return &AdminRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewAdminMapper(),
		logger: logger,
	}
}

// Create creates a new admin
func (r *AdminRepositoryImpl) Create(ctx context.Context, entity *admin.Admin) error {
	model, err := r.mapper.ToModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map admin entity: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return apperrors.NewConflictError("admin username already taken")
		}
		r.logger.Errorw("failed to create admin", "username", model.Username, "error", err)
		return fmt.Errorf("failed to create admin: %w", err)
	}

	if err := entity.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set admin ID: %w", err)
	}

	r.logger.Infow("admin created", "id", model.ID, "username", model.Username)
	return nil
}

// GetByID retrieves an admin by ID
func (r *AdminRepositoryImpl) GetByID(ctx context.Context, id uint) (*admin.Admin, error) {
	var model models.AdminModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("admin not found")
		}
		r.logger.Errorw("failed to get admin", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// GetByUsername retrieves an admin by username
func (r *AdminRepositoryImpl) GetByUsername(ctx context.Context, username string) (*admin.Admin, error) {
	var model models.AdminModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("admin not found")
		}
		r.logger.Errorw("failed to get admin by username", "username", username, "error", err)
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// Update persists all mutable fields of the admin
func (r *AdminRepositoryImpl) Update(ctx context.Context, entity *admin.Admin) error {
	model, err := r.mapper.ToModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map admin entity: %w", err)
	}

	result := db.GetTxFromContext(ctx, r.db).Model(&models.AdminModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"username":          model.Username,
			"status":            model.Status,
			"data_limit":        model.DataLimit,
			"users_limit":       model.UsersLimit,
			"disabled_by_quota": model.DisabledByQuota,
			"updated_at":        model.UpdatedAt,
		})
	if result.Error != nil {
		if apperrors.IsDuplicateError(result.Error) {
			return apperrors.NewConflictError("admin username already taken")
		}
		r.logger.Errorw("failed to update admin", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update admin: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("admin not found")
	}

	return nil
}

// IncrementUsage atomically adds effective traffic to both the rolling
// and the lifetime counter.
func (r *AdminRepositoryImpl) IncrementUsage(ctx context.Context, id uint, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Model(&models.AdminModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"users_usage":    gorm.Expr("users_usage + ?", amount),
			"lifetime_usage": gorm.Expr("lifetime_usage + ?", amount),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to increment admin usage", "id", id, "error", result.Error)
		return fmt.Errorf("failed to increment admin usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("admin not found")
	}

	return nil
}

// ResetUsage zeroes the rolling counter, keeps the lifetime counter and
// returns the previous rolling value.
func (r *AdminRepositoryImpl) ResetUsage(ctx context.Context, id uint) (uint64, error) {
	var prev uint64
	err := db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model models.AdminModel
		if err := tx.First(&model, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("admin not found")
			}
			return fmt.Errorf("failed to load admin: %w", err)
		}

		prev = model.UsersUsage

		return tx.Model(&models.AdminModel{}).
			Where("id = ?", id).
			Update("users_usage", 0).Error
	})
	if err != nil {
		r.logger.Errorw("failed to reset admin usage", "id", id, "error", err)
		return 0, err
	}

	return prev, nil
}

// ListOverDataLimit returns active admins whose rolling usage reached their
// data limit. Admins without a limit are never returned.
func (r *AdminRepositoryImpl) ListOverDataLimit(ctx context.Context) ([]*admin.Admin, error) {
	var modelList []*models.AdminModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND data_limit IS NOT NULL AND data_limit > 0 AND users_usage >= data_limit", admin.AdminStatusActive.String()).
		Order("id").
		Find(&modelList).Error
	if err != nil {
		r.logger.Errorw("failed to list admins over data limit", "error", err)
		return nil, fmt.Errorf("failed to list admins over data limit: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// ListQuotaDisabledUnderLimit returns quota-disabled admins whose usage
// dropped back under their limit, or whose limit was raised or removed.
func (r *AdminRepositoryImpl) ListQuotaDisabledUnderLimit(ctx context.Context) ([]*admin.Admin, error) {
	var modelList []*models.AdminModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND disabled_by_quota = ?", admin.AdminStatusDisabled.String(), true).
		Where("data_limit IS NULL OR data_limit = 0 OR users_usage < data_limit").
		Order("id").
		Find(&modelList).Error
	if err != nil {
		r.logger.Errorw("failed to list quota-disabled admins", "error", err)
		return nil, fmt.Errorf("failed to list quota-disabled admins: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// Delete removes the admin
func (r *AdminRepositoryImpl) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.AdminModel{}, id)
	if result.Error != nil {
		r.logger.Errorw("failed to delete admin", "id", id, "error", result.Error)
		return fmt.Errorf("failed to delete admin: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("admin not found")
	}

	r.logger.Infow("admin deleted", "id", id)
	return nil
}

// List returns admins matching the filter with total count
func (r *AdminRepositoryImpl) List(ctx context.Context, filter admin.AdminFilter) ([]*admin.Admin, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AdminModel{})

	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Username != "" {
		query = query.Where("username LIKE ?", "%"+filter.Username+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.logger.Errorw("failed to count admins", "error", err)
		return nil, 0, fmt.Errorf("failed to count admins: %w", err)
	}

	var modelList []*models.AdminModel
	if err := query.Order("id").Offset(filter.Offset()).Limit(filter.Limit()).Find(&modelList).Error; err != nil {
		r.logger.Errorw("failed to list admins", "error", err)
		return nil, 0, fmt.Errorf("failed to list admins: %w", err)
	}

	entities, err := r.mapper.ToEntities(modelList)
	if err != nil {
		return nil, 0, err
	}

	return entities, total, nil
}
