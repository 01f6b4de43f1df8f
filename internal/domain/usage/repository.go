package usage

import (
	"context"
	"time"
)

// NodeUsageRepository persists hourly node-level usage buckets.
type NodeUsageRepository interface {
	// Increment adds traffic to the bucket for (nodeID, bucket), creating
	// the row when it does not exist yet. A nil nodeID targets the master
	// bucket. The operation is atomic with respect to concurrent callers.
	Increment(ctx context.Context, nodeID *uint, bucket time.Time, uplink, downlink uint64) error

	// GetByNodeAndBucket fetches a single bucket row.
	GetByNodeAndBucket(ctx context.Context, nodeID *uint, bucket time.Time) (*NodeUsage, error)

	// ListByNode returns a node's buckets inside [from, to).
	ListByNode(ctx context.Context, nodeID *uint, from, to time.Time) ([]*NodeUsage, error)

	// TotalsSince sums uplink and downlink across all nodes for buckets at
	// or after since.
	TotalsSince(ctx context.Context, since time.Time) (uplink, downlink uint64, err error)

	// DeleteOldRecords removes buckets older than before.
	DeleteOldRecords(ctx context.Context, before time.Time) error
}

// NodeUserUsageRepository persists hourly per-user-per-node usage buckets.
type NodeUserUsageRepository interface {
	// Increment adds effective traffic to the bucket for (userID, nodeID,
	// bucket), creating the row when it does not exist yet. A nil nodeID
	// targets the master bucket for that user. The operation is atomic
	// with respect to concurrent callers.
	Increment(ctx context.Context, userID uint, nodeID *uint, bucket time.Time, amount uint64) error

	// GetByUserNodeAndBucket fetches a single bucket row.
	GetByUserNodeAndBucket(ctx context.Context, userID uint, nodeID *uint, bucket time.Time) (*NodeUserUsage, error)

	// ListByUser returns a user's buckets inside [from, to) across all nodes.
	ListByUser(ctx context.Context, userID uint, from, to time.Time) ([]*NodeUserUsage, error)

	// TotalByUserSince sums a user's effective traffic for buckets at or
	// after since.
	TotalByUserSince(ctx context.Context, userID uint, since time.Time) (uint64, error)

	// DeleteOldRecords removes buckets older than before.
	DeleteOldRecords(ctx context.Context, before time.Time) error
}

// ResetLogRepository persists usage reset audit records.
type ResetLogRepository interface {
	Create(ctx context.Context, log *ResetLog) error
	ListByEntity(ctx context.Context, category Category, entityID uint, limit int) ([]*ResetLog, error)
}
