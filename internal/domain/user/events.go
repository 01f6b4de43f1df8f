package user

import (
	"fmt"
	"time"

	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
)

// Event types
const (
	EventTypeUserCreated       = "user.created"
	EventTypeUserStatusChanged = "user.status.changed"
	EventTypeUserDeleted       = "user.deleted"
)

// UserCreatedEvent is emitted when a new user is created
type UserCreatedEvent struct {
	events.BaseEvent
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	AdminID  uint   `json:"admin_id"`
	Status   string `json:"status"`
}

// NewUserCreatedEvent creates a new user created event
func NewUserCreatedEvent(userID uint, username string, adminID uint, status string) UserCreatedEvent {
	return UserCreatedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: fmt.Sprintf("user:%d", userID),
			EventType:   EventTypeUserCreated,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		UserID:   userID,
		Username: username,
		AdminID:  adminID,
		Status:   status,
	}
}

// UserStatusChangedEvent is emitted when a user's status changes
type UserStatusChangedEvent struct {
	events.BaseEvent
	UserID         uint   `json:"user_id"`
	Username       string `json:"username"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Reason         string `json:"reason"`
}

// NewUserStatusChangedEvent creates a new user status changed event
func NewUserStatusChangedEvent(userID uint, username, previousStatus, newStatus, reason string) UserStatusChangedEvent {
	return UserStatusChangedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: fmt.Sprintf("user:%d", userID),
			EventType:   EventTypeUserStatusChanged,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		UserID:         userID,
		Username:       username,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		Reason:         reason,
	}
}

// UserDeletedEvent is emitted when a user is deleted
type UserDeletedEvent struct {
	events.BaseEvent
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	DeletedAt time.Time `json:"deleted_at"`
}

// NewUserDeletedEvent creates a new user deleted event
func NewUserDeletedEvent(userID uint, username string) UserDeletedEvent {
	return UserDeletedEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: fmt.Sprintf("user:%d", userID),
			EventType:   EventTypeUserDeleted,
			OccurredAt:  time.Now(),
			Version:     1,
		},
		UserID:    userID,
		Username:  username,
		DeletedAt: time.Now(),
	}
}
