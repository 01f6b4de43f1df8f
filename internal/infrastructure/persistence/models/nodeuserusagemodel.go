package models

import (
	"time"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// NodeUserUsageModel represents the hourly per-user-per-node usage bucket,
// the canonical ledger of who used how much, where, when. CreatedAt is the
// hour-aligned bucket timestamp; NodeID NULL means the master instance.
type NodeUserUsageModel struct {
	ID          uint      `gorm:"primarykey"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_node_user_usage_bucket;index:idx_node_user_usage_user"`
	NodeID      *uint     `gorm:"uniqueIndex:idx_node_user_usage_bucket"`
	UsedTraffic uint64    `gorm:"not null;default:0"` // effective bytes
	CreatedAt   time.Time `gorm:"not null;uniqueIndex:idx_node_user_usage_bucket;index:idx_node_user_usage_time"`
	UpdatedAt   time.Time
}

// TableName specifies the table name for GORM
func (NodeUserUsageModel) TableName() string {
	return constants.TableNodeUserUsages
}
