// Package events defines the domain event contract and the in-process
// dispatcher that carries aggregate state changes to their observers.
package events

import "time"

// DomainEvent is implemented by every event an aggregate records.
type DomainEvent interface {
	// GetAggregateID identifies the aggregate that produced the event.
	GetAggregateID() string

	// GetEventType names the event; handlers subscribe by this name.
	GetEventType() string

	// GetOccurredAt returns when the event occurred.
	GetOccurredAt() time.Time

	// GetVersion returns the event schema version.
	GetVersion() int
}

// BaseEvent carries the fields shared by all domain events. Concrete
// events embed it and add their own payload.
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string   { return e.AggregateID }
func (e BaseEvent) GetEventType() string     { return e.EventType }
func (e BaseEvent) GetOccurredAt() time.Time { return e.OccurredAt }
func (e BaseEvent) GetVersion() int          { return e.Version }

// EventHandler processes dispatched events.
type EventHandler interface {
	Handle(event DomainEvent) error

	// CanHandle reports whether the handler wants events of this type.
	CanHandle(eventType string) bool
}

// EventPublisher is the side services see: they publish the events an
// aggregate collected and move on.
type EventPublisher interface {
	Publish(event DomainEvent) error
	PublishAll(events []DomainEvent) error
}

// EventSubscriber registers handlers by event type.
type EventSubscriber interface {
	Subscribe(eventType string, handler EventHandler) error
	Unsubscribe(eventType string, handler EventHandler) error
}

// EventDispatcher combines both sides plus lifecycle control.
type EventDispatcher interface {
	EventPublisher
	EventSubscriber

	Start() error
	Stop() error
}
