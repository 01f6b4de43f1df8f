package usage

import (
	"sort"
	"time"
)

// Grouping collapses pending deltas onto their (entity, hour bucket) key
// before anything touches the database. The output order is deterministic
// so repeated flushes of the same input issue identical statement
// sequences.

type userKey struct {
	userID uint
	bucket int64
}

// GroupUserDeltas sums user deltas sharing the same user and hour bucket.
func GroupUserDeltas(deltas []UserDelta) []UserDelta {
	if len(deltas) == 0 {
		return nil
	}
	acc := make(map[userKey]uint64, len(deltas))
	buckets := make(map[int64]time.Time, 4)
	for _, d := range deltas {
		k := userKey{userID: d.UserID, bucket: d.Bucket.Unix()}
		acc[k] += d.Amount
		buckets[k.bucket] = d.Bucket
	}
	out := make([]UserDelta, 0, len(acc))
	for k, amount := range acc {
		out = append(out, UserDelta{UserID: k.userID, Amount: amount, Bucket: buckets[k.bucket]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Bucket.Before(out[j].Bucket)
	})
	return out
}

type adminKey struct {
	adminID uint
	bucket  int64
}

// GroupAdminDeltas sums admin deltas sharing the same admin and hour bucket.
func GroupAdminDeltas(deltas []AdminDelta) []AdminDelta {
	if len(deltas) == 0 {
		return nil
	}
	acc := make(map[adminKey]uint64, len(deltas))
	buckets := make(map[int64]time.Time, 4)
	for _, d := range deltas {
		k := adminKey{adminID: d.AdminID, bucket: d.Bucket.Unix()}
		acc[k] += d.Amount
		buckets[k.bucket] = d.Bucket
	}
	out := make([]AdminDelta, 0, len(acc))
	for k, amount := range acc {
		out = append(out, AdminDelta{AdminID: k.adminID, Amount: amount, Bucket: buckets[k.bucket]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AdminID != out[j].AdminID {
			return out[i].AdminID < out[j].AdminID
		}
		return out[i].Bucket.Before(out[j].Bucket)
	})
	return out
}

type serviceKey struct {
	serviceID uint
	adminID   uint
	bucket    int64
}

// GroupServiceDeltas sums service deltas sharing the same service, owning
// admin, and hour bucket.
func GroupServiceDeltas(deltas []ServiceDelta) []ServiceDelta {
	if len(deltas) == 0 {
		return nil
	}
	acc := make(map[serviceKey]uint64, len(deltas))
	buckets := make(map[int64]time.Time, 4)
	for _, d := range deltas {
		k := serviceKey{serviceID: d.ServiceID, adminID: d.AdminID, bucket: d.Bucket.Unix()}
		acc[k] += d.Amount
		buckets[k.bucket] = d.Bucket
	}
	out := make([]ServiceDelta, 0, len(acc))
	for k, amount := range acc {
		out = append(out, ServiceDelta{
			ServiceID: k.serviceID,
			AdminID:   k.adminID,
			Amount:    amount,
			Bucket:    buckets[k.bucket],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceID != out[j].ServiceID {
			return out[i].ServiceID < out[j].ServiceID
		}
		if out[i].AdminID != out[j].AdminID {
			return out[i].AdminID < out[j].AdminID
		}
		return out[i].Bucket.Before(out[j].Bucket)
	})
	return out
}

type nodeKey struct {
	nodeID uint
	master bool
	userID uint
	byUser bool
	bucket int64
}

// GroupNodeDeltas sums node deltas sharing the same node (or master),
// user (or node-level), and hour bucket.
func GroupNodeDeltas(deltas []NodeDelta) []NodeDelta {
	if len(deltas) == 0 {
		return nil
	}
	type pair struct {
		uplink   uint64
		downlink uint64
	}
	acc := make(map[nodeKey]pair, len(deltas))
	buckets := make(map[int64]time.Time, 4)
	for _, d := range deltas {
		k := nodeKey{bucket: d.Bucket.Unix()}
		if d.NodeID != nil {
			k.nodeID = *d.NodeID
		} else {
			k.master = true
		}
		if d.UserID != nil {
			k.userID = *d.UserID
			k.byUser = true
		}
		p := acc[k]
		p.uplink += d.Uplink
		p.downlink += d.Downlink
		acc[k] = p
		buckets[k.bucket] = d.Bucket
	}
	out := make([]NodeDelta, 0, len(acc))
	for k, p := range acc {
		d := NodeDelta{Uplink: p.uplink, Downlink: p.downlink, Bucket: buckets[k.bucket]}
		if !k.master {
			nodeID := k.nodeID
			d.NodeID = &nodeID
		}
		if k.byUser {
			userID := k.userID
			d.UserID = &userID
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := nodeSortKey(out[i].NodeID), nodeSortKey(out[j].NodeID)
		if ni != nj {
			return ni < nj
		}
		ui, uj := nodeSortKey(out[i].UserID), nodeSortKey(out[j].UserID)
		if ui != uj {
			return ui < uj
		}
		return out[i].Bucket.Before(out[j].Bucket)
	})
	return out
}

// nodeSortKey maps nil pointers below any real ID so master and
// node-level rows sort first.
func nodeSortKey(id *uint) int64 {
	if id == nil {
		return -1
	}
	return int64(*id)
}

// GroupBatch returns a new batch with every category grouped.
func GroupBatch(b *Batch) *Batch {
	return &Batch{
		Users:    GroupUserDeltas(b.Users),
		Admins:   GroupAdminDeltas(b.Admins),
		Services: GroupServiceDeltas(b.Services),
		Nodes:    GroupNodeDeltas(b.Nodes),
	}
}
