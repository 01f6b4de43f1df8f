package node

import (
	"fmt"
	"time"

	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
)

const (
	EventTypeNodeCreated         = "node.created"
	EventTypeNodeStatusChanged   = "node.status.changed"
	EventTypeNodeDeleted         = "node.deleted"
	EventTypeMasterStatusChanged = "node.master.status.changed"
)

type NodeCreatedEvent struct {
	events.BaseEvent
	NodeID  uint   `json:"node_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Status  string `json:"status"`
}

func NewNodeCreatedEvent(nodeID uint, name, address string, port uint16, status string) NodeCreatedEvent {
	return NodeCreatedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: fmt.Sprintf("node:%d", nodeID),
			EventType:   EventTypeNodeCreated,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		NodeID:  nodeID,
		Name:    name,
		Address: address,
		Port:    port,
		Status:  status,
	}
}

// NodeStatusChangedEvent is recorded on every actual status transition.
// PreviousStatus and NewStatus always differ; unchanged polls record nothing.
type NodeStatusChangedEvent struct {
	events.BaseEvent
	NodeID         uint   `json:"node_id"`
	Name           string `json:"name"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Message        string `json:"message"`
}

func NewNodeStatusChangedEvent(nodeID uint, name, previousStatus, newStatus, message string) NodeStatusChangedEvent {
	return NodeStatusChangedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: fmt.Sprintf("node:%d", nodeID),
			EventType:   EventTypeNodeStatusChanged,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		NodeID:         nodeID,
		Name:           name,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		Message:        message,
	}
}

// MasterStatusChangedEvent is recorded when the in-process master toggles
// between connected and limited. The master has no connection lifecycle,
// so these are the only two statuses it reports.
type MasterStatusChangedEvent struct {
	events.BaseEvent
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Message        string `json:"message"`
}

func NewMasterStatusChangedEvent(previousStatus, newStatus, message string) MasterStatusChangedEvent {
	return MasterStatusChangedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: "master",
			EventType:   EventTypeMasterStatusChanged,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		Message:        message,
	}
}

type NodeDeletedEvent struct {
	events.BaseEvent
	NodeID uint   `json:"node_id"`
	Name   string `json:"name"`
}

func NewNodeDeletedEvent(nodeID uint, name string) NodeDeletedEvent {
	return NodeDeletedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: fmt.Sprintf("node:%d", nodeID),
			EventType:   EventTypeNodeDeleted,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		NodeID: nodeID,
		Name:   name,
	}
}
