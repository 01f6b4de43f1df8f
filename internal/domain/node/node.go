package node

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
)

// Node represents the remote proxy node aggregate root
type Node struct {
	id               uint
	name             string
	address          string
	port             uint16
	apiPort          uint16
	apiToken         string
	status           vo.NodeStatus
	message          string
	engineVersion    string
	uplink           uint64
	downlink         uint64
	dataLimit        *uint64
	usageCoefficient float64
	tags             []string
	lastStatusChange time.Time
	createdAt        time.Time
	updatedAt        time.Time
	events           []interface{}
	mu               sync.RWMutex
}

// NewNode creates a new node aggregate. New nodes start in connecting
// status so the supervisor picks them up on the next review pass.
func NewNode(name, address string, port, apiPort uint16, usageCoefficient float64, dataLimit *uint64) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("node name is required")
	}
	if address == "" {
		return nil, fmt.Errorf("node address is required")
	}
	if port == 0 {
		return nil, fmt.Errorf("node port is required")
	}
	if apiPort == 0 {
		return nil, fmt.Errorf("node api port is required")
	}
	if usageCoefficient <= 0 {
		usageCoefficient = 1.0
	}

	apiToken, err := generateAPIToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate API token: %w", err)
	}

	now := time.Now()
	n := &Node{
		name:             name,
		address:          address,
		port:             port,
		apiPort:          apiPort,
		apiToken:         apiToken,
		status:           vo.NodeStatusConnecting,
		usageCoefficient: usageCoefficient,
		dataLimit:        dataLimit,
		tags:             []string{},
		lastStatusChange: now,
		createdAt:        now,
		updatedAt:        now,
		events:           []interface{}{},
	}

	n.recordEvent(NewNodeCreatedEvent(n.id, n.name, n.address, n.port, n.status.String()))

	return n, nil
}

// ReconstructNode reconstructs a node from persistence
func ReconstructNode(
	id uint,
	name, address string,
	port, apiPort uint16,
	apiToken string,
	status vo.NodeStatus,
	message, engineVersion string,
	uplink, downlink uint64,
	dataLimit *uint64,
	usageCoefficient float64,
	tags []string,
	lastStatusChange time.Time,
	createdAt, updatedAt time.Time,
) (*Node, error) {
	if id == 0 {
		return nil, fmt.Errorf("node ID cannot be zero")
	}
	if name == "" {
		return nil, fmt.Errorf("node name is required")
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid node status: %s", status)
	}
	if usageCoefficient <= 0 {
		usageCoefficient = 1.0
	}
	if tags == nil {
		tags = []string{}
	}

	return &Node{
		id:               id,
		name:             name,
		address:          address,
		port:             port,
		apiPort:          apiPort,
		apiToken:         apiToken,
		status:           status,
		message:          message,
		engineVersion:    engineVersion,
		uplink:           uplink,
		downlink:         downlink,
		dataLimit:        dataLimit,
		usageCoefficient: usageCoefficient,
		tags:             tags,
		lastStatusChange: lastStatusChange,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
		events:           []interface{}{},
	}, nil
}

// ID returns the node ID
func (n *Node) ID() uint {
	return n.id
}

// Name returns the node name
func (n *Node) Name() string {
	return n.name
}

// Address returns the node address
func (n *Node) Address() string {
	return n.address
}

// Port returns the proxy service port
func (n *Node) Port() uint16 {
	return n.port
}

// APIPort returns the control-API port
func (n *Node) APIPort() uint16 {
	return n.apiPort
}

// APIToken returns the control-API credential
func (n *Node) APIToken() string {
	return n.apiToken
}

// Status returns the node status
func (n *Node) Status() vo.NodeStatus {
	return n.status
}

// Message returns the last status message (failure or limit reason)
func (n *Node) Message() string {
	return n.message
}

// EngineVersion returns the engine version reported at connect time
func (n *Node) EngineVersion() string {
	return n.engineVersion
}

// Uplink returns the cumulative uplink bytes
func (n *Node) Uplink() uint64 {
	return n.uplink
}

// Downlink returns the cumulative downlink bytes
func (n *Node) Downlink() uint64 {
	return n.downlink
}

// TotalUsage returns uplink + downlink
func (n *Node) TotalUsage() uint64 {
	return n.uplink + n.downlink
}

// DataLimit returns the data limit in bytes, nil meaning unlimited
func (n *Node) DataLimit() *uint64 {
	return n.dataLimit
}

// UsageCoefficient returns the multiplier applied to raw counters
func (n *Node) UsageCoefficient() float64 {
	return n.usageCoefficient
}

// Tags returns the free-form node tags
func (n *Node) Tags() []string {
	return n.tags
}

// LastStatusChange returns when the status last changed
func (n *Node) LastStatusChange() time.Time {
	return n.lastStatusChange
}

// CreatedAt returns when the node was created
func (n *Node) CreatedAt() time.Time {
	return n.createdAt
}

// UpdatedAt returns when the node was last updated
func (n *Node) UpdatedAt() time.Time {
	return n.updatedAt
}

// SetID sets the node ID (only for persistence layer use)
func (n *Node) SetID(id uint) error {
	if n.id != 0 {
		return fmt.Errorf("node ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("node ID cannot be zero")
	}
	n.id = id
	return nil
}

// setStatus applies a status transition. A call that would not change the
// status is a no-op and records no event, so pollers never produce
// duplicate notifications for an unchanged status.
func (n *Node) setStatus(target vo.NodeStatus, message string) error {
	if n.status == target {
		return nil
	}
	if !n.status.CanTransitionTo(target) {
		return fmt.Errorf("cannot transition node from %s to %s", n.status, target)
	}

	oldStatus := n.status
	n.status = target
	n.message = message
	n.lastStatusChange = time.Now()
	n.updatedAt = n.lastStatusChange

	n.recordEvent(NewNodeStatusChangedEvent(n.id, n.name, oldStatus.String(), target.String(), message))

	return nil
}

// MarkConnecting marks the node as having a connection attempt in progress
func (n *Node) MarkConnecting() error {
	return n.setStatus(vo.NodeStatusConnecting, "")
}

// MarkConnected marks the node connected and records the engine version
func (n *Node) MarkConnected(engineVersion string) error {
	if err := n.setStatus(vo.NodeStatusConnected, ""); err != nil {
		return err
	}
	n.engineVersion = engineVersion
	return nil
}

// MarkError marks the node as failed with the given reason
func (n *Node) MarkError(message string) error {
	if message == "" {
		message = "connection failed"
	}
	return n.setStatus(vo.NodeStatusError, message)
}

// MarkLimited marks the node as over its data limit
func (n *Node) MarkLimited(reason string) error {
	if reason == "" {
		return fmt.Errorf("limited reason is required")
	}
	return n.setStatus(vo.NodeStatusLimited, reason)
}

// Rearm returns a limited node to connecting after its usage dropped back
// under the data limit or the limit was raised.
func (n *Node) Rearm(message string) error {
	if !n.status.IsLimited() {
		return fmt.Errorf("node is not limited")
	}
	return n.setStatus(vo.NodeStatusConnecting, message)
}

// Disable switches the node off until an explicit enable
func (n *Node) Disable(reason string) error {
	if reason == "" {
		reason = "disabled by administrator"
	}
	return n.setStatus(vo.NodeStatusDisabled, reason)
}

// Enable re-arms a disabled node toward connecting
func (n *Node) Enable() error {
	if !n.status.IsDisabled() {
		return fmt.Errorf("node is not disabled")
	}
	return n.setStatus(vo.NodeStatusConnecting, "enabled by administrator")
}

// RecordUsage adds collected outbound counters to the rolling totals
func (n *Node) RecordUsage(uplink, downlink uint64) {
	if uplink == 0 && downlink == 0 {
		return
	}
	n.uplink += uplink
	n.downlink += downlink
	n.updatedAt = time.Now()
}

// ResetUsage zeroes the rolling counters and returns the previous values
func (n *Node) ResetUsage() (uplink, downlink uint64) {
	uplink, downlink = n.uplink, n.downlink
	n.uplink = 0
	n.downlink = 0
	n.updatedAt = time.Now()
	return uplink, downlink
}

// IsDataLimitExceeded checks if uplink+downlink reached the data limit
func (n *Node) IsDataLimitExceeded() bool {
	if n.dataLimit == nil || *n.dataLimit == 0 {
		return false
	}
	return n.uplink+n.downlink >= *n.dataLimit
}

// UpdateDataLimit updates the data limit, nil meaning unlimited
func (n *Node) UpdateDataLimit(limit *uint64) {
	n.dataLimit = limit
	n.updatedAt = time.Now()
}

// UpdateUsageCoefficient updates the traffic multiplier
func (n *Node) UpdateUsageCoefficient(coefficient float64) error {
	if coefficient <= 0 {
		return fmt.Errorf("usage coefficient must be positive")
	}
	n.usageCoefficient = coefficient
	n.updatedAt = time.Now()
	return nil
}

// UpdateTags replaces the node tags
func (n *Node) UpdateTags(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	n.tags = tags
	n.updatedAt = time.Now()
}

// recordEvent records a domain event
func (n *Node) recordEvent(event interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// GetEvents returns and clears recorded domain events
func (n *Node) GetEvents() []interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	events := n.events
	n.events = []interface{}{}
	return events
}

// ClearEvents clears all recorded events
func (n *Node) ClearEvents() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = []interface{}{}
}

// Validate performs domain-level validation
func (n *Node) Validate() error {
	if n.name == "" {
		return fmt.Errorf("node name is required")
	}
	if n.address == "" {
		return fmt.Errorf("node address is required")
	}
	if n.port == 0 {
		return fmt.Errorf("node port is required")
	}
	if !n.status.IsValid() {
		return fmt.Errorf("invalid node status: %s", n.status)
	}
	if n.usageCoefficient <= 0 {
		return fmt.Errorf("usage coefficient must be positive")
	}
	return nil
}

// generateAPIToken generates the credential presented to the node control API
func generateAPIToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	return "node_" + base64.RawURLEncoding.EncodeToString(tokenBytes), nil
}
