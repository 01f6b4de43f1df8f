package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/domain/user"
	vo "github.com/vetiver-inc/vetiver/internal/domain/user/value_objects"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/mappers"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
	"github.com/vetiver-inc/vetiver/internal/shared/mapper"
)

// UserRepositoryImpl implements the user.Repository interface
type UserRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.UserMapper
	logger logger.Interface
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(gdb *gorm.DB, logger logger.Interface) user.Repository {
	return &UserRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewUserMapper(),
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepositoryImpl) Create(ctx context.Context, entity *user.User) error {
	model, err := r.mapper.ToModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map user entity: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return apperrors.NewConflictError("username already taken")
		}
		r.logger.Errorw("failed to create user", "username", model.Username, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	if err := entity.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set user ID: %w", err)
	}

	r.logger.Infow("user created", "id", model.ID, "username", model.Username)
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepositoryImpl) GetByID(ctx context.Context, id uint) (*user.User, error) {
	var model models.UserModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("user not found")
		}
		r.logger.Errorw("failed to get user", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// GetByUsername retrieves a user by normalized username
func (r *UserRepositoryImpl) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("user not found")
		}
		r.logger.Errorw("failed to get user by username", "username", username, "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// GetByUsernames resolves a set of usernames in one query
func (r *UserRepositoryImpl) GetByUsernames(ctx context.Context, usernames []string) ([]*user.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}

	var modelList []*models.UserModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("username IN ?", usernames).
		Find(&modelList).Error
	if err != nil {
		r.logger.Errorw("failed to get users by usernames", "count", len(usernames), "error", err)
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// Update persists all mutable fields of the user
func (r *UserRepositoryImpl) Update(ctx context.Context, entity *user.User) error {
	model, err := r.mapper.ToModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map user entity: %w", err)
	}

	result := db.GetTxFromContext(ctx, r.db).Model(&models.UserModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"username":    model.Username,
			"admin_id":    model.AdminID,
			"service_id":  model.ServiceID,
			"status":      model.Status,
			"prev_status": model.PrevStatus,
			"updated_at":  model.UpdatedAt,
		})
	if result.Error != nil {
		if apperrors.IsDuplicateError(result.Error) {
			return apperrors.NewConflictError("username already taken")
		}
		r.logger.Errorw("failed to update user", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user not found")
	}

	return nil
}

// ListByAdminAndStatuses returns the admin's users in one of the given statuses
func (r *UserRepositoryImpl) ListByAdminAndStatuses(ctx context.Context, adminID uint, statuses []vo.Status) ([]*user.User, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	values := mapper.MapSlice(statuses, func(s vo.Status) string { return s.String() })

	var modelList []*models.UserModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("admin_id = ? AND status IN ?", adminID, values).
		Order("id").
		Find(&modelList).Error
	if err != nil {
		r.logger.Errorw("failed to list users by admin and status", "admin_id", adminID, "error", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// ListSuspendedByAdmin returns the admin's users suspended by a quota cascade
func (r *UserRepositoryImpl) ListSuspendedByAdmin(ctx context.Context, adminID uint) ([]*user.User, error) {
	var modelList []*models.UserModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("admin_id = ? AND status = ? AND prev_status IS NOT NULL", adminID, vo.StatusDisabled.String()).
		Order("id").
		Find(&modelList).Error
	if err != nil {
		r.logger.Errorw("failed to list suspended users", "admin_id", adminID, "error", err)
		return nil, fmt.Errorf("failed to list suspended users: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// CountActiveByAdmin counts the admin's active users
func (r *UserRepositoryImpl) CountActiveByAdmin(ctx context.Context, adminID uint) (int64, error) {
	var count int64
	err := db.GetTxFromContext(ctx, r.db).Model(&models.UserModel{}).
		Where("admin_id = ? AND status = ?", adminID, vo.StatusActive.String()).
		Count(&count).Error
	if err != nil {
		r.logger.Errorw("failed to count active users", "admin_id", adminID, "error", err)
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}

	return count, nil
}

// IncrementUsage atomically adds effective traffic to the rolling counter
func (r *UserRepositoryImpl) IncrementUsage(ctx context.Context, id uint, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Model(&models.UserModel{}).
		Where("id = ?", id).
		Update("used_traffic", gorm.Expr("used_traffic + ?", amount))
	if result.Error != nil {
		r.logger.Errorw("failed to increment user usage", "id", id, "error", result.Error)
		return fmt.Errorf("failed to increment user usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user not found")
	}

	return nil
}

// ResetUsage zeroes the rolling counter and returns the previous value
func (r *UserRepositoryImpl) ResetUsage(ctx context.Context, id uint) (uint64, error) {
	var prev uint64
	err := db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model models.UserModel
		if err := tx.First(&model, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("user not found")
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		prev = model.UsedTraffic

		return tx.Model(&models.UserModel{}).
			Where("id = ?", id).
			Update("used_traffic", 0).Error
	})
	if err != nil {
		r.logger.Errorw("failed to reset user usage", "id", id, "error", err)
		return 0, err
	}

	return prev, nil
}

// Delete removes the user
func (r *UserRepositoryImpl) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.UserModel{}, id)
	if result.Error != nil {
		r.logger.Errorw("failed to delete user", "id", id, "error", result.Error)
		return fmt.Errorf("failed to delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user not found")
	}

	r.logger.Infow("user deleted", "id", id)
	return nil
}

// List returns users matching the filter with total count
func (r *UserRepositoryImpl) List(ctx context.Context, filter user.UserFilter) ([]*user.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.UserModel{})

	if filter.AdminID != nil {
		query = query.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.ServiceID != nil {
		query = query.Where("service_id = ?", *filter.ServiceID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Username != "" {
		query = query.Where("username LIKE ?", "%"+filter.Username+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.logger.Errorw("failed to count users", "error", err)
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var modelList []*models.UserModel
	if err := query.Order("id").Offset(filter.Offset()).Limit(filter.Limit()).Find(&modelList).Error; err != nil {
		r.logger.Errorw("failed to list users", "error", err)
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	entities, err := r.mapper.ToEntities(modelList)
	if err != nil {
		return nil, 0, err
	}

	return entities, total, nil
}
