package dto

import (
	nodeDTO "github.com/vetiver-inc/vetiver/internal/application/node/dto"
)

// UsageSummary is the fleet-wide usage snapshot served by the ops API.
type UsageSummary struct {
	WindowHours int    `json:"window_hours"`
	Uplink      uint64 `json:"uplink"`
	Downlink    uint64 `json:"downlink"`
	Total       uint64 `json:"total"`

	// Pending counts per write-behind category, keyed by category name.
	Pending map[string]int64 `json:"pending"`

	// Node counts keyed by connection status.
	Nodes map[string]int `json:"nodes"`

	Master *nodeDTO.MasterView `json:"master,omitempty"`
}
