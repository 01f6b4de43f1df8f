package usage

import (
	"fmt"
	"time"
)

// NodeUserUsage is an hourly per-user-per-node usage bucket. A nil nodeID
// means the traffic was observed on the master instance.
type NodeUserUsage struct {
	id          uint
	userID      uint
	nodeID      *uint
	usedTraffic uint64
	bucket      time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// NewNodeUserUsage creates a fresh per-user bucket for the given hour.
func NewNodeUserUsage(userID uint, nodeID *uint, bucket time.Time) (*NodeUserUsage, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user ID is required")
	}
	if nodeID != nil && *nodeID == 0 {
		return nil, fmt.Errorf("node ID cannot be zero when set")
	}
	if bucket.IsZero() {
		return nil, fmt.Errorf("bucket timestamp is required")
	}
	now := time.Now()
	return &NodeUserUsage{
		userID:    userID,
		nodeID:    nodeID,
		bucket:    bucket,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructNodeUserUsage rebuilds a per-user bucket from persistence.
func ReconstructNodeUserUsage(
	id, userID uint,
	nodeID *uint,
	usedTraffic uint64,
	bucket, createdAt, updatedAt time.Time,
) (*NodeUserUsage, error) {
	if id == 0 {
		return nil, fmt.Errorf("node user usage ID cannot be zero")
	}
	if userID == 0 {
		return nil, fmt.Errorf("user ID is required")
	}
	if bucket.IsZero() {
		return nil, fmt.Errorf("bucket timestamp is required")
	}
	return &NodeUserUsage{
		id:          id,
		userID:      userID,
		nodeID:      nodeID,
		usedTraffic: usedTraffic,
		bucket:      bucket,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}, nil
}

func (nuu *NodeUserUsage) ID() uint             { return nuu.id }
func (nuu *NodeUserUsage) UserID() uint         { return nuu.userID }
func (nuu *NodeUserUsage) NodeID() *uint        { return nuu.nodeID }
func (nuu *NodeUserUsage) UsedTraffic() uint64  { return nuu.usedTraffic }
func (nuu *NodeUserUsage) Bucket() time.Time    { return nuu.bucket }
func (nuu *NodeUserUsage) CreatedAt() time.Time { return nuu.createdAt }
func (nuu *NodeUserUsage) UpdatedAt() time.Time { return nuu.updatedAt }

// Accumulate adds effective traffic to the bucket.
func (nuu *NodeUserUsage) Accumulate(amount uint64) {
	if amount == 0 {
		return
	}
	nuu.usedTraffic += amount
	nuu.updatedAt = time.Now()
}

// SetID sets the record ID after insertion.
func (nuu *NodeUserUsage) SetID(id uint) error {
	if nuu.id != 0 {
		return fmt.Errorf("node user usage ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("node user usage ID cannot be zero")
	}
	nuu.id = id
	return nil
}
