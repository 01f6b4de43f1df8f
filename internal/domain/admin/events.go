package admin

import (
	"fmt"
	"time"

	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
)

// Event types
const (
	EventTypeAdminCreated       = "admin.created"
	EventTypeAdminStatusChanged = "admin.status.changed"
)

// AdminCreatedEvent is emitted when a new admin is created
type AdminCreatedEvent struct {
	events.BaseEvent
	AdminID  uint   `json:"admin_id"`
	Username string `json:"username"`
}

// NewAdminCreatedEvent creates a new admin created event
func NewAdminCreatedEvent(adminID uint, username string) AdminCreatedEvent {
	return AdminCreatedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: fmt.Sprintf("admin:%d", adminID),
			EventType:   EventTypeAdminCreated,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		AdminID:  adminID,
		Username: username,
	}
}

// AdminStatusChangedEvent is emitted when an admin's status changes.
// ByQuota marks transitions caused by data-limit enforcement rather than
// an operator.
type AdminStatusChangedEvent struct {
	events.BaseEvent
	AdminID        uint   `json:"admin_id"`
	Username       string `json:"username"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Reason         string `json:"reason"`
	ByQuota        bool   `json:"by_quota"`
}

// NewAdminStatusChangedEvent creates a new admin status changed event
func NewAdminStatusChangedEvent(adminID uint, username, previousStatus, newStatus, reason string, byQuota bool) AdminStatusChangedEvent {
	return AdminStatusChangedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: fmt.Sprintf("admin:%d", adminID),
			EventType:   EventTypeAdminStatusChanged,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		AdminID:        adminID,
		Username:       username,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		Reason:         reason,
		ByQuota:        byQuota,
	}
}
