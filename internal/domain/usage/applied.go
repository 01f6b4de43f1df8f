package usage

// Applied lists the entities whose durable aggregate rows changed in a
// committed write. Quota evaluation runs over exactly this set, never
// over deltas that are still cache-buffered.
type Applied struct {
	UserIDs    []uint
	AdminIDs   []uint
	ServiceIDs []uint
	NodeIDs    []uint
	Master     bool
}

// AddUser records a user whose rolling counter was committed.
func (a *Applied) AddUser(id uint) {
	a.UserIDs = appendUniqueID(a.UserIDs, id)
}

// AddAdmin records an admin whose rolling counters were committed.
func (a *Applied) AddAdmin(id uint) {
	a.AdminIDs = appendUniqueID(a.AdminIDs, id)
}

// AddService records a service whose counter was committed.
func (a *Applied) AddService(id uint) {
	a.ServiceIDs = appendUniqueID(a.ServiceIDs, id)
}

// AddNode records a node whose rolling counters were committed; a nil id
// marks the master instead.
func (a *Applied) AddNode(id *uint) {
	if id == nil {
		a.Master = true
		return
	}
	a.NodeIDs = appendUniqueID(a.NodeIDs, *id)
}

// IsEmpty reports whether nothing was committed.
func (a *Applied) IsEmpty() bool {
	return len(a.UserIDs) == 0 && len(a.AdminIDs) == 0 &&
		len(a.ServiceIDs) == 0 && len(a.NodeIDs) == 0 && !a.Master
}

// Merge folds other's entries into a.
func (a *Applied) Merge(other *Applied) {
	if other == nil {
		return
	}
	for _, id := range other.UserIDs {
		a.AddUser(id)
	}
	for _, id := range other.AdminIDs {
		a.AddAdmin(id)
	}
	for _, id := range other.ServiceIDs {
		a.AddService(id)
	}
	for _, id := range other.NodeIDs {
		nodeID := id
		a.AddNode(&nodeID)
	}
	if other.Master {
		a.Master = true
	}
}

// appendUniqueID appends id unless already present. The sets stay small
// (entities touched in one flush), so a linear scan is enough.
func appendUniqueID(ids []uint, id uint) []uint {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
