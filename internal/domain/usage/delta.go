package usage

import "time"

// UserDelta is a pending increment to a user's rolling traffic counter.
// Amount is effective bytes, already scaled by the node's usage coefficient.
type UserDelta struct {
	UserID uint      `json:"user_id"`
	Amount uint64    `json:"amount"`
	Bucket time.Time `json:"bucket"`
}

// AdminDelta is a pending increment to an admin's rolling and lifetime
// traffic counters.
type AdminDelta struct {
	AdminID uint      `json:"admin_id"`
	Amount  uint64    `json:"amount"`
	Bucket  time.Time `json:"bucket"`
}

// ServiceDelta is a pending increment to a service's traffic counter.
// AdminID rides along so the flush can settle the owning admin's share
// without a lookup.
type ServiceDelta struct {
	ServiceID uint      `json:"service_id"`
	AdminID   uint      `json:"admin_id"`
	Amount    uint64    `json:"amount"`
	Bucket    time.Time `json:"bucket"`
}

// NodeDelta is a pending increment to an hourly usage bucket.
// A nil NodeID means the delta belongs to the master instance.
// A nil UserID means the delta is node-level (outbound counters);
// otherwise it is a per-user-per-node sample.
type NodeDelta struct {
	NodeID   *uint     `json:"node_id,omitempty"`
	UserID   *uint     `json:"user_id,omitempty"`
	Uplink   uint64    `json:"uplink"`
	Downlink uint64    `json:"downlink"`
	Bucket   time.Time `json:"bucket"`
}

// Batch carries one collection round's worth of pending deltas across
// all categories. Collectors fill it, the ledger drains it.
type Batch struct {
	Users    []UserDelta
	Admins   []AdminDelta
	Services []ServiceDelta
	Nodes    []NodeDelta
}

// IsEmpty reports whether the batch holds no deltas at all.
func (b *Batch) IsEmpty() bool {
	return len(b.Users) == 0 && len(b.Admins) == 0 && len(b.Services) == 0 && len(b.Nodes) == 0
}

// Size returns the total number of deltas across all categories.
func (b *Batch) Size() int {
	return len(b.Users) + len(b.Admins) + len(b.Services) + len(b.Nodes)
}

// Merge appends all deltas from other into b.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	b.Users = append(b.Users, other.Users...)
	b.Admins = append(b.Admins, other.Admins...)
	b.Services = append(b.Services, other.Services...)
	b.Nodes = append(b.Nodes, other.Nodes...)
}
