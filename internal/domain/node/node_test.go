package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := NewNode("tokyo-1", "203.0.113.10", 443, 8443, 1.0, nil)
	require.NoError(t, err)
	return n
}

func TestNewNode(t *testing.T) {
	limit := uint64(1000)
	n, err := NewNode("tokyo-1", "203.0.113.10", 443, 8443, 1.5, &limit)
	require.NoError(t, err)

	assert.Equal(t, "tokyo-1", n.Name())
	assert.Equal(t, vo.NodeStatusConnecting, n.Status())
	assert.Equal(t, 1.5, n.UsageCoefficient())
	require.NotNil(t, n.DataLimit())
	assert.Equal(t, uint64(1000), *n.DataLimit())
	assert.NotEmpty(t, n.APIToken())
	assert.Contains(t, n.APIToken(), "node_")

	events := n.GetEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(NodeCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, vo.NodeStatusConnecting.String(), created.Status)
}

func TestNewNodeValidation(t *testing.T) {
	tests := []struct {
		name     string
		nodeName string
		address  string
		port     uint16
		apiPort  uint16
	}{
		{"empty name", "", "203.0.113.10", 443, 8443},
		{"empty address", "tokyo-1", "", 443, 8443},
		{"zero port", "tokyo-1", "203.0.113.10", 0, 8443},
		{"zero api port", "tokyo-1", "203.0.113.10", 443, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNode(tt.nodeName, tt.address, tt.port, tt.apiPort, 1.0, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewNodeDefaultsCoefficient(t *testing.T) {
	n, err := NewNode("tokyo-1", "203.0.113.10", 443, 8443, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, n.UsageCoefficient())
}

func TestNodeConnectLifecycle(t *testing.T) {
	n := newTestNode(t)
	n.ClearEvents()

	require.NoError(t, n.MarkConnected("1.8.4"))
	assert.Equal(t, vo.NodeStatusConnected, n.Status())
	assert.Equal(t, "1.8.4", n.EngineVersion())
	assert.Empty(t, n.Message())

	require.NoError(t, n.MarkError("dial tcp: connection refused"))
	assert.Equal(t, vo.NodeStatusError, n.Status())
	assert.Equal(t, "dial tcp: connection refused", n.Message())

	require.NoError(t, n.MarkConnecting())
	assert.Equal(t, vo.NodeStatusConnecting, n.Status())

	events := n.GetEvents()
	require.Len(t, events, 3)
	for _, e := range events {
		changed, ok := e.(NodeStatusChangedEvent)
		require.True(t, ok)
		assert.NotEqual(t, changed.PreviousStatus, changed.NewStatus)
	}
}

func TestNodeStatusChangeIsIdempotent(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.MarkConnected("1.8.4"))
	n.ClearEvents()

	// A repeated observation of the same status records nothing.
	require.NoError(t, n.MarkConnected("1.8.4"))
	assert.Empty(t, n.GetEvents())
}

func TestNodeMarkLimited(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.MarkConnected("1.8.4"))
	n.ClearEvents()

	require.NoError(t, n.MarkLimited("data limit reached: 1010 of 1000 bytes"))
	assert.Equal(t, vo.NodeStatusLimited, n.Status())
	assert.NotEmpty(t, n.Message())

	events := n.GetEvents()
	require.Len(t, events, 1)
	changed := events[0].(NodeStatusChangedEvent)
	assert.Equal(t, "connected", changed.PreviousStatus)
	assert.Equal(t, "limited", changed.NewStatus)

	err := n.MarkLimited("")
	assert.Error(t, err, "limited requires a reason")
}

func TestNodeRearm(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.MarkConnected("1.8.4"))
	require.NoError(t, n.MarkLimited("data limit reached"))

	require.NoError(t, n.Rearm("usage back under data limit"))
	assert.Equal(t, vo.NodeStatusConnecting, n.Status())

	// Rearm only applies to limited nodes.
	assert.Error(t, n.Rearm("again"))
}

func TestNodeDisableEnable(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.Disable("maintenance window"))
	assert.Equal(t, vo.NodeStatusDisabled, n.Status())

	// Disabled nodes only leave via Enable.
	assert.Error(t, n.MarkConnected("1.8.4"))

	require.NoError(t, n.Enable())
	assert.Equal(t, vo.NodeStatusConnecting, n.Status())
}

func TestNodeRecordUsageAndLimit(t *testing.T) {
	limit := uint64(1000)
	n, err := NewNode("tokyo-1", "203.0.113.10", 443, 8443, 1.0, &limit)
	require.NoError(t, err)

	n.RecordUsage(500, 400)
	assert.Equal(t, uint64(900), n.TotalUsage())
	assert.False(t, n.IsDataLimitExceeded())

	// 900 + 110 = 1010 >= 1000
	n.RecordUsage(50, 60)
	assert.Equal(t, uint64(1010), n.TotalUsage())
	assert.True(t, n.IsDataLimitExceeded())
}

func TestNodeResetUsage(t *testing.T) {
	n := newTestNode(t)
	n.RecordUsage(100, 200)

	up, down := n.ResetUsage()
	assert.Equal(t, uint64(100), up)
	assert.Equal(t, uint64(200), down)
	assert.Zero(t, n.TotalUsage())
}

func TestNodeUnlimitedByDefault(t *testing.T) {
	n := newTestNode(t)
	n.RecordUsage(1<<40, 1<<40)
	assert.False(t, n.IsDataLimitExceeded())

	zero := uint64(0)
	n.UpdateDataLimit(&zero)
	assert.False(t, n.IsDataLimitExceeded(), "zero limit means unlimited")
}

func TestReconstructNode(t *testing.T) {
	now := time.Now()
	limit := uint64(5000)
	n, err := ReconstructNode(
		7, "osaka-2", "203.0.113.20", 443, 8443,
		"node_abc", vo.NodeStatusError, "dial timeout", "1.8.3",
		120, 340, &limit, 2.0, []string{"premium"},
		now, now, now,
	)
	require.NoError(t, err)

	assert.Equal(t, uint(7), n.ID())
	assert.Equal(t, vo.NodeStatusError, n.Status())
	assert.Equal(t, uint64(460), n.TotalUsage())
	assert.Equal(t, 2.0, n.UsageCoefficient())
	assert.Empty(t, n.GetEvents(), "reconstruction records no events")

	_, err = ReconstructNode(
		0, "osaka-2", "203.0.113.20", 443, 8443,
		"node_abc", vo.NodeStatusError, "", "",
		0, 0, nil, 1.0, nil,
		now, now, now,
	)
	assert.Error(t, err)
}

func TestMasterLifecycle(t *testing.T) {
	m := NewMaster()
	assert.Equal(t, vo.NodeStatusConnected, m.Status())

	limit := uint64(1000)
	m.UpdateDataLimit(&limit)
	m.RecordUsage(600, 500)
	assert.True(t, m.IsDataLimitExceeded())

	assert.True(t, m.MarkLimited("master data limit reached"))
	assert.True(t, m.IsLimited())
	// Flagging again reports no change.
	assert.False(t, m.MarkLimited("master data limit reached"))

	up, down := m.ResetUsage()
	assert.Equal(t, uint64(600), up)
	assert.Equal(t, uint64(500), down)

	assert.True(t, m.ClearLimited("usage reset"))
	assert.Equal(t, vo.NodeStatusConnected, m.Status())
	assert.False(t, m.ClearLimited("noop"))
}

func TestReconstructMasterRejectsForeignStatus(t *testing.T) {
	now := time.Now()
	_, err := ReconstructMaster(vo.NodeStatusError, "", "", 0, 0, nil, 1.0, now, now)
	assert.Error(t, err)

	m, err := ReconstructMaster(vo.NodeStatusLimited, "over limit", "1.8.4", 10, 20, nil, 1.0, now, now)
	require.NoError(t, err)
	assert.True(t, m.IsLimited())
}
