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

// NodeUserUsageRepositoryImpl implements the usage.NodeUserUsageRepository interface
type NodeUserUsageRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.UsageMapper
	logger logger.Interface
}

// NewNodeUserUsageRepository creates a new per-user usage repository instance
func NewNodeUserUsageRepository(gdb *gorm.DB, logger logger.Interface) usage.NodeUserUsageRepository {
	return &NodeUserUsageRepositoryImpl{
		db:     gdb,
		mapper: mappers.NewUsageMapper(),
		logger: logger,
	}
}

func scopeUserBucket(tx *gorm.DB, userID uint, nodeID *uint, bucket time.Time) *gorm.DB {
	if nodeID == nil {
		return tx.Where("user_id = ? AND node_id IS NULL AND created_at = ?", userID, bucket)
	}
	return tx.Where("user_id = ? AND node_id = ? AND created_at = ?", userID, *nodeID, bucket)
}

// Increment adds effective traffic to the bucket for (userID, nodeID,
// bucket), seeding the row when absent. The increment itself is a single
// atomic statement so concurrent collectors never lose updates.
func (r *NodeUserUsageRepositoryImpl) Increment(ctx context.Context, userID uint, nodeID *uint, bucket time.Time, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tx := db.GetTxFromContext(ctx, r.db)

	if nodeID == nil {
		// NULL node_id rows escape the unique index under MySQL, so the
		// master bucket is looked up before inserting.
		err := scopeUserBucket(tx, userID, nil, bucket).First(&models.NodeUserUsageModel{}).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seed := &models.NodeUserUsageModel{UserID: userID, CreatedAt: bucket}
			if err := tx.Create(seed).Error; err != nil {
				r.logger.Errorw("failed to seed master user usage bucket", "user_id", userID, "bucket", bucket, "error", err)
				return fmt.Errorf("failed to seed master user usage bucket: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up master user usage bucket: %w", err)
		}
	} else {
		seed := &models.NodeUserUsageModel{UserID: userID, NodeID: nodeID, CreatedAt: bucket}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			r.logger.Errorw("failed to seed user usage bucket", "user_id", userID, "node_id", *nodeID, "bucket", bucket, "error", err)
			return fmt.Errorf("failed to seed user usage bucket: %w", err)
		}
	}

	result := scopeUserBucket(tx.Model(&models.NodeUserUsageModel{}), userID, nodeID, bucket).
		Update("used_traffic", gorm.Expr("used_traffic + ?", amount))
	if result.Error != nil {
		r.logger.Errorw("failed to increment user usage bucket", "user_id", userID, "bucket", bucket, "error", result.Error)
		return fmt.Errorf("failed to increment user usage bucket: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user usage bucket missing after seed: user=%d bucket=%s", userID, bucket.Format(time.RFC3339))
	}

	return nil
}

// GetByUserNodeAndBucket fetches a single bucket row
func (r *NodeUserUsageRepositoryImpl) GetByUserNodeAndBucket(ctx context.Context, userID uint, nodeID *uint, bucket time.Time) (*usage.NodeUserUsage, error) {
	var model models.NodeUserUsageModel
	err := scopeUserBucket(db.GetTxFromContext(ctx, r.db), userID, nodeID, bucket).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("usage bucket not found")
		}
		r.logger.Errorw("failed to get user usage bucket", "user_id", userID, "bucket", bucket, "error", err)
		return nil, fmt.Errorf("failed to get user usage bucket: %w", err)
	}

	return r.mapper.ToNodeUserUsageEntity(&model)
}

// ListByUser returns a user's buckets inside [from, to) across all nodes
func (r *NodeUserUsageRepositoryImpl) ListByUser(ctx context.Context, userID uint, from, to time.Time) ([]*usage.NodeUserUsage, error) {
	var modelList []*models.NodeUserUsageModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to).
		Order("created_at").
		Find(&modelList).Error
	if err != nil {
		r.logger.Errorw("failed to list user usage buckets", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list user usage buckets: %w", err)
	}

	return r.mapper.ToNodeUserUsageEntities(modelList)
}

// TotalByUserSince sums a user's effective traffic for buckets at or after since
func (r *NodeUserUsageRepositoryImpl) TotalByUserSince(ctx context.Context, userID uint, since time.Time) (uint64, error) {
	var total uint64
	err := r.db.WithContext(ctx).Model(&models.NodeUserUsageModel{}).
		Select("COALESCE(SUM(used_traffic), 0)").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&total).Error
	if err != nil {
		r.logger.Errorw("failed to sum user usage", "user_id", userID, "since", since, "error", err)
		return 0, fmt.Errorf("failed to sum user usage: %w", err)
	}

	return total, nil
}

// DeleteOldRecords removes buckets older than before
func (r *NodeUserUsageRepositoryImpl) DeleteOldRecords(ctx context.Context, before time.Time) error {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.NodeUserUsageModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete old user usage", "before", before, "error", result.Error)
		return fmt.Errorf("failed to delete old user usage: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		r.logger.Infow("deleted old user usage buckets", "count", result.RowsAffected, "before", before)
	}
	return nil
}
