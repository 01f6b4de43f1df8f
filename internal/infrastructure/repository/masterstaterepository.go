package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/mappers"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// MasterStateRepositoryImpl implements the node.MasterStateRepository
// interface over the singleton master_node_state row.
type MasterStateRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.MasterMapper
	logger logger.Interface
}

// NewMasterStateRepository creates a new master state repository instance
func NewMasterStateRepository(gdb *gorm.DB, logger logger.Interface) node.MasterStateRepository {
	return &MasterStateRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewMasterMapper(),
		logger: logger,
	}
}

// Get returns the singleton row, creating it lazily on first access
func (r *MasterStateRepositoryImpl) Get(ctx context.Context) (*node.Master, error) {
	var model models.MasterNodeStateModel
	err := r.db.WithContext(ctx).
		Where(models.MasterNodeStateModel{ID: node.MasterStateID}).
		Attrs(models.MasterNodeStateModel{Status: "connected", UsageCoefficient: 1.0}).
		FirstOrCreate(&model).Error
	if err != nil {
		r.logger.Errorw("failed to load master state", "error", err)
		return nil, fmt.Errorf("failed to load master state: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// Update persists all mutable fields of the master state
func (r *MasterStateRepositoryImpl) Update(ctx context.Context, master *node.Master) error {
	model, err := r.mapper.ToModel(master)
	if err != nil {
		return fmt.Errorf("failed to map master state: %w", err)
	}

	result := r.db.WithContext(ctx).Model(&models.MasterNodeStateModel{}).
		Where("id = ?", node.MasterStateID).
		Updates(map[string]interface{}{
			"status":            model.Status,
			"message":           model.Message,
			"engine_version":    model.EngineVersion,
			"data_limit":        model.DataLimit,
			"usage_coefficient": model.UsageCoefficient,
			"updated_at":        model.UpdatedAt,
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update master state", "error", result.Error)
		return fmt.Errorf("failed to update master state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Row not created yet; persist the full state.
		if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model).Error; err != nil {
			return fmt.Errorf("failed to create master state: %w", err)
		}
	}

	return nil
}

// IncrementUsage atomically adds to the rolling counters
func (r *MasterStateRepositoryImpl) IncrementUsage(ctx context.Context, uplink, downlink uint64) error {
	if uplink == 0 && downlink == 0 {
		return nil
	}

	tx := db.GetTxFromContext(ctx, r.db)
	increment := func() (int64, error) {
		result := tx.Model(&models.MasterNodeStateModel{}).
			Where("id = ?", node.MasterStateID).
			Updates(map[string]interface{}{
				"uplink":   gorm.Expr("uplink + ?", uplink),
				"downlink": gorm.Expr("downlink + ?", downlink),
			})
		return result.RowsAffected, result.Error
	}

	affected, err := increment()
	if err != nil {
		r.logger.Errorw("failed to increment master usage", "error", err)
		return fmt.Errorf("failed to increment master usage: %w", err)
	}
	if affected == 0 {
		// Row not created yet; lazy-create and retry once.
		if _, err := r.Get(ctx); err != nil {
			return err
		}
		if affected, err = increment(); err != nil {
			return fmt.Errorf("failed to increment master usage: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("master state row missing after create")
		}
	}

	return nil
}

// ResetUsage zeroes the rolling counters and returns the previous values
func (r *MasterStateRepositoryImpl) ResetUsage(ctx context.Context) (uplink, downlink uint64, err error) {
	err = db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model models.MasterNodeStateModel
		if err := tx.Where("id = ?", node.MasterStateID).First(&model).Error; err != nil {
			return fmt.Errorf("failed to load master state: %w", err)
		}

		uplink, downlink = model.Uplink, model.Downlink

		return tx.Model(&models.MasterNodeStateModel{}).
			Where("id = ?", node.MasterStateID).
			Updates(map[string]interface{}{"uplink": 0, "downlink": 0}).Error
	})
	if err != nil {
		r.logger.Errorw("failed to reset master usage", "error", err)
		return 0, 0, err
	}

	return uplink, downlink, nil
}
