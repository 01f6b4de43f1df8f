package models

import (
	"time"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// NodeUsageModel represents the hourly node-level usage bucket.
// CreatedAt carries the hour-aligned bucket timestamp and is part of the
// uniqueness key, so one row exists per (hour, node). NodeID NULL marks
// the master instance's bucket.
type NodeUsageModel struct {
	ID        uint      `gorm:"primarykey"`
	NodeID    *uint     `gorm:"uniqueIndex:idx_node_usage_bucket;index:idx_node_usage_node"`
	Uplink    uint64    `gorm:"not null;default:0"` // bytes
	Downlink  uint64    `gorm:"not null;default:0"` // bytes
	CreatedAt time.Time `gorm:"not null;uniqueIndex:idx_node_usage_bucket;index:idx_node_usage_time"`
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM
func (NodeUsageModel) TableName() string {
	return constants.TableNodeUsages
}
