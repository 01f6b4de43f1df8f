package usage

import (
	"fmt"
	"time"
)

// NodeUsage is an hourly node-level usage bucket. A nil nodeID marks the
// bucket as belonging to the master instance.
type NodeUsage struct {
	id        uint
	nodeID    *uint
	uplink    uint64
	downlink  uint64
	bucket    time.Time
	createdAt time.Time
	updatedAt time.Time
}

// NewNodeUsage creates a fresh bucket for the given node and hour.
func NewNodeUsage(nodeID *uint, bucket time.Time) (*NodeUsage, error) {
	if nodeID != nil && *nodeID == 0 {
		return nil, fmt.Errorf("node ID cannot be zero when set")
	}
	if bucket.IsZero() {
		return nil, fmt.Errorf("bucket timestamp is required")
	}
	now := time.Now()
	return &NodeUsage{
		nodeID:    nodeID,
		bucket:    bucket,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructNodeUsage rebuilds a bucket from persistence.
func ReconstructNodeUsage(
	id uint,
	nodeID *uint,
	uplink, downlink uint64,
	bucket, createdAt, updatedAt time.Time,
) (*NodeUsage, error) {
	if id == 0 {
		return nil, fmt.Errorf("node usage ID cannot be zero")
	}
	if bucket.IsZero() {
		return nil, fmt.Errorf("bucket timestamp is required")
	}
	return &NodeUsage{
		id:        id,
		nodeID:    nodeID,
		uplink:    uplink,
		downlink:  downlink,
		bucket:    bucket,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}, nil
}

func (nu *NodeUsage) ID() uint             { return nu.id }
func (nu *NodeUsage) NodeID() *uint        { return nu.nodeID }
func (nu *NodeUsage) Uplink() uint64       { return nu.uplink }
func (nu *NodeUsage) Downlink() uint64     { return nu.downlink }
func (nu *NodeUsage) Bucket() time.Time    { return nu.bucket }
func (nu *NodeUsage) CreatedAt() time.Time { return nu.createdAt }
func (nu *NodeUsage) UpdatedAt() time.Time { return nu.updatedAt }

// IsMaster reports whether the bucket belongs to the master instance.
func (nu *NodeUsage) IsMaster() bool {
	return nu.nodeID == nil
}

// Total returns uplink plus downlink.
func (nu *NodeUsage) Total() uint64 {
	return nu.uplink + nu.downlink
}

// Accumulate adds traffic to the bucket.
func (nu *NodeUsage) Accumulate(uplink, downlink uint64) {
	if uplink == 0 && downlink == 0 {
		return
	}
	nu.uplink += uplink
	nu.downlink += downlink
	nu.updatedAt = time.Now()
}

// SetID sets the record ID after insertion.
func (nu *NodeUsage) SetID(id uint) error {
	if nu.id != 0 {
		return fmt.Errorf("node usage ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("node usage ID cannot be zero")
	}
	nu.id = id
	return nil
}
