package engine

import (
	"context"
	"errors"
	"sync"
)

// StatsSource is the read-and-reset counter surface the usage collector
// consumes. Both remote node handles and the local master implement it.
type StatsSource interface {
	PullUserStats(ctx context.Context) ([]UserStat, error)
	PullOutboundStats(ctx context.Context) (*OutboundStat, error)
}

// Handle binds one node's control-API client with its connection state.
// The registry owns handles; status transitions and persistence stay with
// the supervisor, the handle only tracks the link itself.
type Handle struct {
	nodeID uint
	client *Client

	mu        sync.RWMutex
	connected bool
	started   bool
	version   string
}

// NewHandle creates a handle for the given node
func NewHandle(nodeID uint, client *Client) *Handle {
	return &Handle{
		nodeID: nodeID,
		client: client,
	}
}

// NodeID returns the node this handle belongs to
func (h *Handle) NodeID() uint {
	return h.nodeID
}

// Connect starts the remote engine with cfg and probes its version.
// On any failure the handle is torn down before the error is returned, so
// a half-open link never reports ready.
func (h *Handle) Connect(ctx context.Context, cfg Config) (string, error) {
	if err := h.client.Start(ctx, cfg); err != nil {
		h.Teardown()
		return "", err
	}

	version, err := h.client.GetVersion(ctx)
	if err != nil {
		h.Teardown()
		return "", err
	}

	h.mu.Lock()
	h.connected = true
	h.started = true
	h.version = version
	h.mu.Unlock()

	return version, nil
}

// Restart restarts the remote engine in place and re-probes its version.
// Failure tears the link down like Connect.
func (h *Handle) Restart(ctx context.Context, cfg Config) (string, error) {
	if err := h.client.Restart(ctx, cfg); err != nil {
		h.Teardown()
		return "", err
	}

	version, err := h.client.GetVersion(ctx)
	if err != nil {
		h.Teardown()
		return "", err
	}

	h.mu.Lock()
	h.connected = true
	h.started = true
	h.version = version
	h.mu.Unlock()

	return version, nil
}

// Teardown drops the link state. Safe to call repeatedly.
func (h *Handle) Teardown() {
	h.mu.Lock()
	h.connected = false
	h.started = false
	h.version = ""
	h.mu.Unlock()
}

// IsReady reports whether the engine is connected and started, the
// precondition for counter collection.
func (h *Handle) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected && h.started
}

// Version returns the engine version recorded at the last successful probe
func (h *Handle) Version() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// AddUser registers a user on the engine. When the engine already knows the
// username the stale entry is removed and the add retried once, making the
// operation idempotent from the caller's view.
func (h *Handle) AddUser(ctx context.Context, username string, payload Config) error {
	err := h.client.AddUser(ctx, username, payload)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserExists) {
		return err
	}

	if err := h.client.RemoveUser(ctx, username); err != nil {
		return err
	}
	return h.client.AddUser(ctx, username, payload)
}

// RemoveUser deletes a user from the engine; unknown usernames succeed
func (h *Handle) RemoveUser(ctx context.Context, username string) error {
	return h.client.RemoveUser(ctx, username)
}

// PullUserStats reads and resets per-user counters
func (h *Handle) PullUserStats(ctx context.Context) ([]UserStat, error) {
	if !h.IsReady() {
		return nil, ErrNotRunning
	}
	return h.client.GetUserStats(ctx, true)
}

// PullOutboundStats reads and resets the aggregate outbound counters
func (h *Handle) PullOutboundStats(ctx context.Context) (*OutboundStat, error) {
	if !h.IsReady() {
		return nil, ErrNotRunning
	}
	return h.client.GetOutboundStats(ctx, true)
}
