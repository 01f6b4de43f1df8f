package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vetiver-inc/vetiver/internal/domain/service"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/mappers"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// AdminServiceLinkRepositoryImpl implements the service.LinkRepository interface
type AdminServiceLinkRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.LinkMapper
	logger logger.Interface
}

// NewAdminServiceLinkRepository creates a new admin-service link repository instance
func NewAdminServiceLinkRepository(gdb *gorm.DB, logger logger.Interface) service.LinkRepository {
	return &AdminServiceLinkRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewLinkMapper(),
		logger: logger,
	}
}

// IncrementUsage adds effective traffic to the (admin, service) link,
// creating the row first when it does not exist. The insert ignores the
// race where another writer created the row concurrently, then the
// increment runs as a single atomic statement.
func (r *AdminServiceLinkRepositoryImpl) IncrementUsage(ctx context.Context, adminID, serviceID uint, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tx := db.GetTxFromContext(ctx, r.db)

	seed := &models.AdminServiceLinkModel{
		AdminID:   adminID,
		ServiceID: serviceID,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		r.logger.Errorw("failed to seed admin-service link",
			"admin_id", adminID, "service_id", serviceID, "error", err)
		return fmt.Errorf("failed to seed admin-service link: %w", err)
	}

	result := tx.Model(&models.AdminServiceLinkModel{}).
		Where("admin_id = ? AND service_id = ?", adminID, serviceID).
		Update("used_traffic", gorm.Expr("used_traffic + ?", amount))
	if result.Error != nil {
		r.logger.Errorw("failed to increment admin-service usage",
			"admin_id", adminID, "service_id", serviceID, "error", result.Error)
		return fmt.Errorf("failed to increment admin-service usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("admin-service link row missing after seed: admin=%d service=%d", adminID, serviceID)
	}

	return nil
}

// GetByAdminAndService fetches a single link row
func (r *AdminServiceLinkRepositoryImpl) GetByAdminAndService(ctx context.Context, adminID, serviceID uint) (*service.AdminServiceLink, error) {
	var model models.AdminServiceLinkModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("admin_id = ? AND service_id = ?", adminID, serviceID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("admin-service link not found")
		}
		r.logger.Errorw("failed to get admin-service link",
			"admin_id", adminID, "service_id", serviceID, "error", err)
		return nil, fmt.Errorf("failed to get admin-service link: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// ListByAdmin returns all links for an admin
func (r *AdminServiceLinkRepositoryImpl) ListByAdmin(ctx context.Context, adminID uint) ([]*service.AdminServiceLink, error) {
	var modelList []*models.AdminServiceLinkModel
	err := r.db.WithContext(ctx).
		Where("admin_id = ?", adminID).
		Order("service_id").
		Find(&modelList).Error
	if err != nil {
		r.logger.Errorw("failed to list admin-service links", "admin_id", adminID, "error", err)
		return nil, fmt.Errorf("failed to list admin-service links: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// ResetUsage zeroes the link's rolling counter and returns the previous value
func (r *AdminServiceLinkRepositoryImpl) ResetUsage(ctx context.Context, adminID, serviceID uint) (uint64, error) {
	var prev uint64
	err := db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model models.AdminServiceLinkModel
		err := tx.Where("admin_id = ? AND service_id = ?", adminID, serviceID).First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("admin-service link not found")
			}
			return fmt.Errorf("failed to load admin-service link: %w", err)
		}

		prev = model.UsedTraffic

		return tx.Model(&models.AdminServiceLinkModel{}).
			Where("admin_id = ? AND service_id = ?", adminID, serviceID).
			Update("used_traffic", 0).Error
	})
	if err != nil {
		r.logger.Errorw("failed to reset admin-service usage",
			"admin_id", adminID, "service_id", serviceID, "error", err)
		return 0, err
	}

	return prev, nil
}
