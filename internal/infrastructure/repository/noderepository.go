package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/domain/node"
	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/mappers"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
	"github.com/vetiver-inc/vetiver/internal/shared/mapper"
)

// NodeRepositoryImpl implements the node.NodeRepository interface
type NodeRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.NodeMapper
	logger logger.Interface
}

// NewNodeRepository creates a new node repository instance
func NewNodeRepository(gdb *gorm.DB, logger logger.Interface) node.NodeRepository {
	return &NodeRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewNodeMapper(),
		logger: logger,
	}
}

// Create creates a new node
func (r *NodeRepositoryImpl) Create(ctx context.Context, entity *node.Node) error {
	model, err := r.mapper.ToModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map node entity: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return apperrors.NewConflictError("node with this name already exists")
		}
		r.logger.Errorw("failed to create node", "name", model.Name, "error", err)
		return fmt.Errorf("failed to create node: %w", err)
	}

	if err := entity.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set node ID: %w", err)
	}

	r.logger.Infow("node created", "id", model.ID, "name", model.Name)
	return nil
}

// GetByID retrieves a node by ID
func (r *NodeRepositoryImpl) GetByID(ctx context.Context, id uint) (*node.Node, error) {
	var model models.NodeModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("node not found")
		}
		r.logger.Errorw("failed to get node", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// GetAll returns every node
func (r *NodeRepositoryImpl) GetAll(ctx context.Context) ([]*node.Node, error) {
	var modelList []*models.NodeModel
	if err := r.db.WithContext(ctx).Order("id").Find(&modelList).Error; err != nil {
		r.logger.Errorw("failed to list nodes", "error", err)
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// GetByStatuses returns nodes currently in one of the given statuses
func (r *NodeRepositoryImpl) GetByStatuses(ctx context.Context, statuses ...vo.NodeStatus) ([]*node.Node, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	values := mapper.MapSlice(statuses, func(s vo.NodeStatus) string { return s.String() })

	var modelList []*models.NodeModel
	if err := r.db.WithContext(ctx).Where("status IN ?", values).Order("id").Find(&modelList).Error; err != nil {
		r.logger.Errorw("failed to list nodes by status", "statuses", values, "error", err)
		return nil, fmt.Errorf("failed to list nodes by status: %w", err)
	}

	return r.mapper.ToEntities(modelList)
}

// Update persists all mutable fields of the node
func (r *NodeRepositoryImpl) Update(ctx context.Context, entity *node.Node) error {
	model, err := r.mapper.ToModel(entity)
	if err != nil {
		return fmt.Errorf("failed to map node entity: %w", err)
	}

	result := r.db.WithContext(ctx).Model(&models.NodeModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"name":               model.Name,
			"address":            model.Address,
			"port":               model.Port,
			"api_port":           model.APIPort,
			"api_token":          model.APIToken,
			"status":             model.Status,
			"message":            model.Message,
			"engine_version":     model.EngineVersion,
			"data_limit":         model.DataLimit,
			"usage_coefficient":  model.UsageCoefficient,
			"tags":               model.Tags,
			"last_status_change": model.LastStatusChange,
			"updated_at":         model.UpdatedAt,
		})
	if result.Error != nil {
		if apperrors.IsDuplicateError(result.Error) {
			return apperrors.NewConflictError("node with this name already exists")
		}
		r.logger.Errorw("failed to update node", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update node: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("node not found")
	}

	return nil
}

// UpdateStatus persists only the status fields
func (r *NodeRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status vo.NodeStatus, message, engineVersion string) error {
	updates := map[string]interface{}{
		"status":             status.String(),
		"message":            message,
		"last_status_change": gorm.Expr("CURRENT_TIMESTAMP"),
	}
	if engineVersion != "" {
		updates["engine_version"] = engineVersion
	}

	result := r.db.WithContext(ctx).Model(&models.NodeModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		r.logger.Errorw("failed to update node status", "id", id, "status", status, "error", result.Error)
		return fmt.Errorf("failed to update node status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("node not found")
	}

	r.logger.Debugw("node status updated", "id", id, "status", status, "message", message)
	return nil
}

// IncrementUsage atomically adds to the rolling counters
func (r *NodeRepositoryImpl) IncrementUsage(ctx context.Context, id uint, uplink, downlink uint64) error {
	if uplink == 0 && downlink == 0 {
		return nil
	}

	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Model(&models.NodeModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"uplink":   gorm.Expr("uplink + ?", uplink),
			"downlink": gorm.Expr("downlink + ?", downlink),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to increment node usage", "id", id, "error", result.Error)
		return fmt.Errorf("failed to increment node usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("node not found")
	}

	return nil
}

// ResetUsage zeroes the rolling counters and returns the previous values
func (r *NodeRepositoryImpl) ResetUsage(ctx context.Context, id uint) (uplink, downlink uint64, err error) {
	err = db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model models.NodeModel
		if err := tx.First(&model, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("node not found")
			}
			return fmt.Errorf("failed to load node: %w", err)
		}

		uplink, downlink = model.Uplink, model.Downlink

		return tx.Model(&models.NodeModel{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"uplink": 0, "downlink": 0}).Error
	})
	if err != nil {
		r.logger.Errorw("failed to reset node usage", "id", id, "error", err)
		return 0, 0, err
	}

	return uplink, downlink, nil
}

// Delete removes the node together with its usage rows
func (r *NodeRepositoryImpl) Delete(ctx context.Context, id uint) error {
	err := db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("node_id = ?", id).Delete(&models.NodeUsageModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete node usage rows: %w", err)
		}
		if err := tx.Where("node_id = ?", id).Delete(&models.NodeUserUsageModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete node user usage rows: %w", err)
		}

		result := tx.Delete(&models.NodeModel{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete node: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFoundError("node not found")
		}

		return nil
	})
	if err != nil {
		r.logger.Errorw("failed to delete node", "id", id, "error", err)
		return err
	}

	r.logger.Infow("node deleted", "id", id)
	return nil
}

// List returns nodes matching the filter with total count
func (r *NodeRepositoryImpl) List(ctx context.Context, filter node.NodeFilter) ([]*node.Node, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.NodeModel{})

	if filter.Name != nil && *filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+*filter.Name+"%")
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.logger.Errorw("failed to count nodes", "error", err)
		return nil, 0, fmt.Errorf("failed to count nodes: %w", err)
	}

	var modelList []*models.NodeModel
	if err := query.Order("id").Offset(filter.Offset()).Limit(filter.Limit()).Find(&modelList).Error; err != nil {
		r.logger.Errorw("failed to list nodes", "error", err)
		return nil, 0, fmt.Errorf("failed to list nodes: %w", err)
	}

	entities, err := r.mapper.ToEntities(modelList)
	if err != nil {
		return nil, 0, err
	}

	return entities, total, nil
}
