package value_objects

import (
	"fmt"
	"strings"
)

// NodeStatus represents the node connection lifecycle status
type NodeStatus string

const (
	// NodeStatusConnecting is the initial status and the status of any
	// node whose connection attempt is in progress.
	NodeStatusConnecting NodeStatus = "connecting"
	// NodeStatusConnected means the remote engine answered and is serving.
	NodeStatusConnected NodeStatus = "connected"
	// NodeStatusError means the last connection attempt failed; the node
	// stays eligible for automatic reconnection.
	NodeStatusError NodeStatus = "error"
	// NodeStatusLimited means the node crossed its data limit. Terminal
	// until an administrative action (raise limit, reset usage) re-arms it.
	NodeStatusLimited NodeStatus = "limited"
	// NodeStatusDisabled means an administrator switched the node off.
	// Terminal until an explicit enable.
	NodeStatusDisabled NodeStatus = "disabled"
)

var validStatuses = map[NodeStatus]bool{
	NodeStatusConnecting: true,
	NodeStatusConnected:  true,
	NodeStatusError:      true,
	NodeStatusLimited:    true,
	NodeStatusDisabled:   true,
}

var nodeStatusTransitions = map[NodeStatus][]NodeStatus{
	NodeStatusConnecting: {
		NodeStatusConnected,
		NodeStatusError,
		NodeStatusLimited,
		NodeStatusDisabled,
	},
	NodeStatusConnected: {
		NodeStatusConnecting,
		NodeStatusError,
		NodeStatusLimited,
		NodeStatusDisabled,
	},
	NodeStatusError: {
		NodeStatusConnecting,
		NodeStatusLimited,
		NodeStatusDisabled,
	},
	NodeStatusLimited: {
		NodeStatusConnecting,
		NodeStatusDisabled,
	},
	NodeStatusDisabled: {
		NodeStatusConnecting,
	},
}

// NewNodeStatus parses a string into a NodeStatus (case-insensitive).
func NewNodeStatus(value string) (NodeStatus, error) {
	normalized := NodeStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", fmt.Errorf("node status cannot be empty")
	}
	if !validStatuses[normalized] {
		return "", fmt.Errorf("invalid node status: %s", value)
	}
	return normalized, nil
}

func (ns NodeStatus) String() string {
	return string(ns)
}

func (ns NodeStatus) IsValid() bool {
	return validStatuses[ns]
}

func (ns NodeStatus) IsConnecting() bool {
	return ns == NodeStatusConnecting
}

func (ns NodeStatus) IsConnected() bool {
	return ns == NodeStatusConnected
}

func (ns NodeStatus) IsError() bool {
	return ns == NodeStatusError
}

func (ns NodeStatus) IsLimited() bool {
	return ns == NodeStatusLimited
}

func (ns NodeStatus) IsDisabled() bool {
	return ns == NodeStatusDisabled
}

// EligibleForConnect reports whether the supervisor may start another
// automatic connection attempt from this status.
func (ns NodeStatus) EligibleForConnect() bool {
	return ns == NodeStatusConnecting || ns == NodeStatusError
}

// IsTerminal reports whether the status blocks automatic reconnection
// until an explicit administrative action.
func (ns NodeStatus) IsTerminal() bool {
	return ns == NodeStatusLimited || ns == NodeStatusDisabled
}

// CanTransitionTo checks whether the transition to target is allowed.
func (ns NodeStatus) CanTransitionTo(target NodeStatus) bool {
	allowedTransitions, ok := nodeStatusTransitions[ns]
	if !ok {
		return false
	}
	for _, allowed := range allowedTransitions {
		if allowed == target {
			return true
		}
	}
	return false
}
