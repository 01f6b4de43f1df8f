package dto

import (
	"time"

	"github.com/vetiver-inc/vetiver/internal/domain/node"
)

// NodeView is the read-only API projection of a node. The control-API
// token is deliberately omitted.
type NodeView struct {
	ID               uint      `json:"id"`
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	Port             uint16    `json:"port"`
	APIPort          uint16    `json:"api_port"`
	Status           string    `json:"status"`
	Message          string    `json:"message,omitempty"`
	EngineVersion    string    `json:"engine_version,omitempty"`
	HasUpdate        bool      `json:"has_update"`
	Uplink           uint64    `json:"uplink"`
	Downlink         uint64    `json:"downlink"`
	TotalUsage       uint64    `json:"total_usage"`
	DataLimit        *uint64   `json:"data_limit,omitempty"`
	UsageCoefficient float64   `json:"usage_coefficient"`
	Tags             []string  `json:"tags,omitempty"`
	LastStatusChange time.Time `json:"last_status_change"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ToNodeView converts a node aggregate to its API projection
func ToNodeView(n *node.Node) *NodeView {
	if n == nil {
		return nil
	}
	return &NodeView{
		ID:               n.ID(),
		Name:             n.Name(),
		Address:          n.Address(),
		Port:             n.Port(),
		APIPort:          n.APIPort(),
		Status:           n.Status().String(),
		Message:          n.Message(),
		EngineVersion:    n.EngineVersion(),
		Uplink:           n.Uplink(),
		Downlink:         n.Downlink(),
		TotalUsage:       n.TotalUsage(),
		DataLimit:        n.DataLimit(),
		UsageCoefficient: n.UsageCoefficient(),
		Tags:             n.Tags(),
		LastStatusChange: n.LastStatusChange(),
		CreatedAt:        n.CreatedAt(),
		UpdatedAt:        n.UpdatedAt(),
	}
}

// ToNodeViews converts a slice of node aggregates
func ToNodeViews(nodes []*node.Node) []*NodeView {
	views := make([]*NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, ToNodeView(n))
	}
	return views
}

// MasterView is the read-only API projection of the in-process engine.
type MasterView struct {
	Status           string    `json:"status"`
	Message          string    `json:"message,omitempty"`
	EngineVersion    string    `json:"engine_version,omitempty"`
	Running          bool      `json:"running"`
	Uplink           uint64    `json:"uplink"`
	Downlink         uint64    `json:"downlink"`
	TotalUsage       uint64    `json:"total_usage"`
	DataLimit        *uint64   `json:"data_limit,omitempty"`
	UsageCoefficient float64   `json:"usage_coefficient"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ToMasterView converts the master state aggregate to its API projection.
// Running reflects the live engine process, which the aggregate does not
// track, so callers supply it.
func ToMasterView(m *node.Master, running bool) *MasterView {
	if m == nil {
		return nil
	}
	return &MasterView{
		Status:           m.Status().String(),
		Message:          m.Message(),
		EngineVersion:    m.EngineVersion(),
		Running:          running,
		Uplink:           m.Uplink(),
		Downlink:         m.Downlink(),
		TotalUsage:       m.TotalUsage(),
		DataLimit:        m.DataLimit(),
		UsageCoefficient: m.UsageCoefficient(),
		UpdatedAt:        m.UpdatedAt(),
	}
}
