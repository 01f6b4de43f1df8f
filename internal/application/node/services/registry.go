package services

import (
	"sync"

	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/metrics"
)

// Registry owns the live node handles and the in-flight connection set.
// Both structures are process-local: handles are runtime state, never
// persisted. Locks guard only map access, so operations on distinct nodes
// never block each other.
type Registry struct {
	mu      sync.RWMutex
	handles map[uint]*engine.Handle

	inflightMu sync.Mutex
	inflight   map[uint]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handles:  make(map[uint]*engine.Handle),
		inflight: make(map[uint]struct{}),
	}
}

// Get returns the handle for a node, if present
func (r *Registry) Get(nodeID uint) (*engine.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[nodeID]
	return handle, ok
}

// Put stores a handle, replacing any previous one for the same node
func (r *Registry) Put(handle *engine.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[handle.NodeID()] = handle
	metrics.SetReadyHandles(len(r.handles))
}

// Remove discards a node's handle and returns it for teardown.
// Removing an absent node is a no-op.
func (r *Registry) Remove(nodeID uint) (*engine.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.handles[nodeID]
	if ok {
		delete(r.handles, nodeID)
		metrics.SetReadyHandles(len(r.handles))
	}
	return handle, ok
}

// Ready returns a snapshot of handles whose engines are connected and
// started, the collection input set.
func (r *Registry) Ready() []*engine.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ready := make([]*engine.Handle, 0, len(r.handles))
	for _, handle := range r.handles {
		if handle.IsReady() {
			ready = append(ready, handle)
		}
	}
	return ready
}

// Drain removes and returns every handle, leaving the registry empty.
// Used at shutdown to tear connections down in one sweep.
func (r *Registry) Drain() []*engine.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := make([]*engine.Handle, 0, len(r.handles))
	for id, handle := range r.handles {
		drained = append(drained, handle)
		delete(r.handles, id)
	}
	metrics.SetReadyHandles(0)
	return drained
}

// Len returns the number of registered handles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// TryBeginConnect marks a node's connection attempt as in flight.
// It returns false when an attempt is already running, which makes
// duplicate concurrent connects for the same node a no-op.
func (r *Registry) TryBeginConnect(nodeID uint) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()

	if _, running := r.inflight[nodeID]; running {
		return false
	}
	r.inflight[nodeID] = struct{}{}
	return true
}

// EndConnect clears a node's in-flight marker. Callers defer it right
// after a successful TryBeginConnect so the marker survives no code path.
func (r *Registry) EndConnect(nodeID uint) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, nodeID)
}
