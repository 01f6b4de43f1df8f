package value_objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNodeStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    NodeStatus
		wantErr bool
	}{
		{"connecting", "connecting", NodeStatusConnecting, false},
		{"connected", "connected", NodeStatusConnected, false},
		{"error", "error", NodeStatusError, false},
		{"limited", "limited", NodeStatusLimited, false},
		{"disabled", "disabled", NodeStatusDisabled, false},
		{"uppercase is normalized", "Connected", NodeStatusConnected, false},
		{"whitespace is trimmed", "  limited  ", NodeStatusLimited, false},
		{"empty", "", "", true},
		{"unknown", "offline", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewNodeStatus(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNodeStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    NodeStatus
		to      NodeStatus
		allowed bool
	}{
		{"connecting to connected", NodeStatusConnecting, NodeStatusConnected, true},
		{"connecting to error", NodeStatusConnecting, NodeStatusError, true},
		{"connecting to limited", NodeStatusConnecting, NodeStatusLimited, true},
		{"connecting to disabled", NodeStatusConnecting, NodeStatusDisabled, true},
		{"connected to connecting", NodeStatusConnected, NodeStatusConnecting, true},
		{"connected to error", NodeStatusConnected, NodeStatusError, true},
		{"connected to limited", NodeStatusConnected, NodeStatusLimited, true},
		{"error to connecting", NodeStatusError, NodeStatusConnecting, true},
		{"error to connected requires a connect attempt", NodeStatusError, NodeStatusConnected, false},
		{"limited to connecting", NodeStatusLimited, NodeStatusConnecting, true},
		{"limited to connected is not direct", NodeStatusLimited, NodeStatusConnected, false},
		{"limited to error", NodeStatusLimited, NodeStatusError, false},
		{"disabled to connecting", NodeStatusDisabled, NodeStatusConnecting, true},
		{"disabled to connected is not direct", NodeStatusDisabled, NodeStatusConnected, false},
		{"disabled to limited", NodeStatusDisabled, NodeStatusLimited, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestNodeStatusEligibleForConnect(t *testing.T) {
	tests := []struct {
		status   NodeStatus
		eligible bool
	}{
		{NodeStatusConnecting, true},
		{NodeStatusError, true},
		{NodeStatusConnected, false},
		{NodeStatusLimited, false},
		{NodeStatusDisabled, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.eligible, tt.status.EligibleForConnect())
		})
	}
}

func TestNodeStatusIsTerminal(t *testing.T) {
	assert.True(t, NodeStatusLimited.IsTerminal())
	assert.True(t, NodeStatusDisabled.IsTerminal())
	assert.False(t, NodeStatusConnecting.IsTerminal())
	assert.False(t, NodeStatusConnected.IsTerminal())
	assert.False(t, NodeStatusError.IsTerminal())
}
