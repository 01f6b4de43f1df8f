package node

import (
	"fmt"
	"time"

	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
)

// MasterStateID is the fixed primary key of the singleton master row.
const MasterStateID uint = 1

// Master represents the in-process proxy engine state. It shares the
// status/limit/usage shape of Node but has no connection to supervise:
// its status only toggles between connected and limited, and the limited
// flag is what downstream config generation must respect.
type Master struct {
	status           vo.NodeStatus
	message          string
	engineVersion    string
	uplink           uint64
	downlink         uint64
	dataLimit        *uint64
	usageCoefficient float64
	lastStatusChange time.Time
	updatedAt        time.Time
}

// NewMaster creates the initial master state
func NewMaster() *Master {
	now := time.Now()
	return &Master{
		status:           vo.NodeStatusConnected,
		usageCoefficient: 1.0,
		lastStatusChange: now,
		updatedAt:        now,
	}
}

// ReconstructMaster reconstructs the master state from persistence
func ReconstructMaster(
	status vo.NodeStatus,
	message, engineVersion string,
	uplink, downlink uint64,
	dataLimit *uint64,
	usageCoefficient float64,
	lastStatusChange, updatedAt time.Time,
) (*Master, error) {
	if status != vo.NodeStatusConnected && status != vo.NodeStatusLimited {
		return nil, fmt.Errorf("invalid master status: %s", status)
	}
	if usageCoefficient <= 0 {
		usageCoefficient = 1.0
	}
	return &Master{
		status:           status,
		message:          message,
		engineVersion:    engineVersion,
		uplink:           uplink,
		downlink:         downlink,
		dataLimit:        dataLimit,
		usageCoefficient: usageCoefficient,
		lastStatusChange: lastStatusChange,
		updatedAt:        updatedAt,
	}, nil
}

// Status returns the master status
func (m *Master) Status() vo.NodeStatus {
	return m.status
}

// Message returns the last status message
func (m *Master) Message() string {
	return m.message
}

// EngineVersion returns the local engine version
func (m *Master) EngineVersion() string {
	return m.engineVersion
}

// Uplink returns the cumulative uplink bytes
func (m *Master) Uplink() uint64 {
	return m.uplink
}

// Downlink returns the cumulative downlink bytes
func (m *Master) Downlink() uint64 {
	return m.downlink
}

// TotalUsage returns uplink + downlink
func (m *Master) TotalUsage() uint64 {
	return m.uplink + m.downlink
}

// DataLimit returns the data limit in bytes, nil meaning unlimited
func (m *Master) DataLimit() *uint64 {
	return m.dataLimit
}

// UsageCoefficient returns the multiplier applied to raw counters
func (m *Master) UsageCoefficient() float64 {
	return m.usageCoefficient
}

// LastStatusChange returns when the status last changed
func (m *Master) LastStatusChange() time.Time {
	return m.lastStatusChange
}

// UpdatedAt returns when the state was last updated
func (m *Master) UpdatedAt() time.Time {
	return m.updatedAt
}

// IsLimited reports whether the master is over its data limit
func (m *Master) IsLimited() bool {
	return m.status.IsLimited()
}

// MarkLimited flags the master as over its data limit. There is no
// process to disconnect, only the flag changes.
func (m *Master) MarkLimited(reason string) bool {
	if m.status.IsLimited() {
		return false
	}
	if reason == "" {
		reason = "master data limit reached"
	}
	m.status = vo.NodeStatusLimited
	m.message = reason
	m.lastStatusChange = time.Now()
	m.updatedAt = m.lastStatusChange
	return true
}

// ClearLimited returns the master to connected once usage is back under
// the limit. Returns false when the master was not limited.
func (m *Master) ClearLimited(message string) bool {
	if !m.status.IsLimited() {
		return false
	}
	m.status = vo.NodeStatusConnected
	m.message = message
	m.lastStatusChange = time.Now()
	m.updatedAt = m.lastStatusChange
	return true
}

// SetEngineVersion records the local engine version
func (m *Master) SetEngineVersion(version string) {
	m.engineVersion = version
	m.updatedAt = time.Now()
}

// RecordUsage adds collected outbound counters to the rolling totals
func (m *Master) RecordUsage(uplink, downlink uint64) {
	if uplink == 0 && downlink == 0 {
		return
	}
	m.uplink += uplink
	m.downlink += downlink
	m.updatedAt = time.Now()
}

// ResetUsage zeroes the rolling counters and returns the previous values
func (m *Master) ResetUsage() (uplink, downlink uint64) {
	uplink, downlink = m.uplink, m.downlink
	m.uplink = 0
	m.downlink = 0
	m.updatedAt = time.Now()
	return uplink, downlink
}

// IsDataLimitExceeded checks if uplink+downlink reached the data limit
func (m *Master) IsDataLimitExceeded() bool {
	if m.dataLimit == nil || *m.dataLimit == 0 {
		return false
	}
	return m.uplink+m.downlink >= *m.dataLimit
}

// UpdateDataLimit updates the data limit, nil meaning unlimited
func (m *Master) UpdateDataLimit(limit *uint64) {
	m.dataLimit = limit
	m.updatedAt = time.Now()
}
