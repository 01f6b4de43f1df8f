package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/mappers"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// NodeUsageRepositoryImpl implements the usage.NodeUsageRepository interface
type NodeUsageRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.UsageMapper
	logger logger.Interface
}

// NewNodeUsageRepository creates a new node usage repository instance
func NewNodeUsageRepository(gdb *gorm.DB, logger logger.Interface) usage.NodeUsageRepository {
	return &NodeUsageRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewUsageMapper(),
		logger: logger,
	}
}

// scopeNodeBucket narrows a query to one (node, bucket) row. NULL node_id
// rows belong to the master instance and need IS NULL matching.
func scopeNodeBucket(tx *gorm.DB, nodeID *uint, bucket time.Time) *gorm.DB {
	if nodeID == nil {
		return tx.Where("node_id IS NULL AND created_at = ?", bucket)
	}
	return tx.Where("node_id = ? AND created_at = ?", *nodeID, bucket)
}

// Increment adds traffic to the bucket for (nodeID, bucket). The bucket row
// is seeded first when absent, then incremented in a single atomic
// statement so concurrent writers never lose updates.
func (r *NodeUsageRepositoryImpl) Increment(ctx context.Context, nodeID *uint, bucket time.Time, uplink, downlink uint64) error {
	if uplink == 0 && downlink == 0 {
		return nil
	}

	tx := db.GetTxFromContext(ctx, r.db)

	if nodeID == nil {
		// Unique indexes do not collide on NULL node_id under MySQL, so
		// the master bucket is looked up before inserting instead of
		// relying on ON CONFLICT.
		err := scopeNodeBucket(tx, nil, bucket).First(&models.NodeUsageModel{}).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seed := &models.NodeUsageModel{CreatedAt: bucket}
			if err := tx.Create(seed).Error; err != nil {
				r.logger.Errorw("failed to seed master usage bucket", "bucket", bucket, "error", err)
				return fmt.Errorf("failed to seed master usage bucket: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up master usage bucket: %w", err)
		}
	} else {
		seed := &models.NodeUsageModel{NodeID: nodeID, CreatedAt: bucket}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			r.logger.Errorw("failed to seed node usage bucket", "node_id", *nodeID, "bucket", bucket, "error", err)
			return fmt.Errorf("failed to seed node usage bucket: %w", err)
		}
	}

	result := scopeNodeBucket(tx.Model(&models.NodeUsageModel{}), nodeID, bucket).
		Updates(map[string]interface{}{
			"uplink":   gorm.Expr("uplink + ?", uplink),
			"downlink": gorm.Expr("downlink + ?", downlink),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to increment node usage", "bucket", bucket, "error", result.Error)
		return fmt.Errorf("failed to increment node usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("node usage bucket missing after seed: bucket=%s", bucket.Format(time.RFC3339))
	}

	return nil
}

// GetByNodeAndBucket fetches a single bucket row
func (r *NodeUsageRepositoryImpl) GetByNodeAndBucket(ctx context.Context, nodeID *uint, bucket time.Time) (*usage.NodeUsage, error) {
	var model models.NodeUsageModel
	err := scopeNodeBucket(db.GetTxFromContext(ctx, r.db), nodeID, bucket).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("usage bucket not found")
		}
		r.logger.Errorw("failed to get node usage bucket", "bucket", bucket, "error", err)
		return nil, fmt.Errorf("failed to get node usage bucket: %w", err)
	}

	return r.mapper.ToNodeUsageEntity(&model)
}

// ListByNode returns a node's buckets inside [from, to)
func (r *NodeUsageRepositoryImpl) ListByNode(ctx context.Context, nodeID *uint, from, to time.Time) ([]*usage.NodeUsage, error) {
	query := r.db.WithContext(ctx).Where("created_at >= ? AND created_at < ?", from, to)
	if nodeID == nil {
		query = query.Where("node_id IS NULL")
	} else {
		query = query.Where("node_id = ?", *nodeID)
	}

	var modelList []*models.NodeUsageModel
	if err := query.Order("created_at").Find(&modelList).Error; err != nil {
		r.logger.Errorw("failed to list node usage buckets", "error", err)
		return nil, fmt.Errorf("failed to list node usage buckets: %w", err)
	}

	return r.mapper.ToNodeUsageEntities(modelList)
}

// TotalsSince sums uplink and downlink across all nodes for buckets at or
// after since.
func (r *NodeUsageRepositoryImpl) TotalsSince(ctx context.Context, since time.Time) (uint64, uint64, error) {
	var row struct {
		Uplink   uint64
		Downlink uint64
	}
	err := r.db.WithContext(ctx).Model(&models.NodeUsageModel{}).
		Select("COALESCE(SUM(uplink), 0) AS uplink, COALESCE(SUM(downlink), 0) AS downlink").
		Where("created_at >= ?", since).
		Scan(&row).Error
	if err != nil {
		r.logger.Errorw("failed to sum node usage", "since", since, "error", err)
		return 0, 0, fmt.Errorf("failed to sum node usage: %w", err)
	}

	return row.Uplink, row.Downlink, nil
}

// DeleteOldRecords removes buckets older than before
func (r *NodeUsageRepositoryImpl) DeleteOldRecords(ctx context.Context, before time.Time) error {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.NodeUsageModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete old node usage", "before", before, "error", result.Error)
		return fmt.Errorf("failed to delete old node usage: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		r.logger.Infow("deleted old node usage buckets", "count", result.RowsAffected, "before", before)
	}
	return nil
}
