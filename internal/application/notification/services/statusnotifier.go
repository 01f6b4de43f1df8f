package services

import (
	"context"
	"fmt"

	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/notification"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// StatusNotifier turns status-change events into operator notifications.
// Aggregates record an event only on an actual transition, so every
// subscription here fires at most once per change without its own dedup.
type StatusNotifier struct {
	notifier notification.Notifier
	logger   logger.Interface
}

// NewStatusNotifier creates a new StatusNotifier
func NewStatusNotifier(notifier notification.Notifier, log logger.Interface) *StatusNotifier {
	return &StatusNotifier{
		notifier: notifier,
		logger:   log.Named("status-notifier"),
	}
}

// Register subscribes the notifier to the status-change event types.
func (s *StatusNotifier) Register(dispatcher events.EventDispatcher) error {
	if err := dispatcher.Subscribe(node.EventTypeNodeStatusChanged,
		events.NewSimpleEventHandler(node.EventTypeNodeStatusChanged, s.handleNodeStatus)); err != nil {
		return fmt.Errorf("failed to subscribe to node status events: %w", err)
	}
	if err := dispatcher.Subscribe(node.EventTypeMasterStatusChanged,
		events.NewSimpleEventHandler(node.EventTypeMasterStatusChanged, s.handleMasterStatus)); err != nil {
		return fmt.Errorf("failed to subscribe to master status events: %w", err)
	}
	if err := dispatcher.Subscribe(admin.EventTypeAdminStatusChanged,
		events.NewSimpleEventHandler(admin.EventTypeAdminStatusChanged, s.handleAdminStatus)); err != nil {
		return fmt.Errorf("failed to subscribe to admin status events: %w", err)
	}
	return nil
}

func (s *StatusNotifier) handleNodeStatus(event events.DomainEvent) error {
	e, ok := event.(node.NodeStatusChangedEvent)
	if !ok {
		return nil
	}

	subject := fmt.Sprintf("Node %s: %s -> %s", e.Name, e.PreviousStatus, e.NewStatus)
	body := fmt.Sprintf("Node %q (id %d) changed from %s to %s.", e.Name, e.NodeID, e.PreviousStatus, e.NewStatus)
	if e.Message != "" {
		body += fmt.Sprintf("\n\nDetail: %s", e.Message)
	}

	s.send(subject, body)
	return nil
}

func (s *StatusNotifier) handleMasterStatus(event events.DomainEvent) error {
	e, ok := event.(node.MasterStatusChangedEvent)
	if !ok {
		return nil
	}

	subject := fmt.Sprintf("Master engine: %s -> %s", e.PreviousStatus, e.NewStatus)
	body := fmt.Sprintf("The local master engine changed from %s to %s.", e.PreviousStatus, e.NewStatus)
	if e.Message != "" {
		body += fmt.Sprintf("\n\nDetail: %s", e.Message)
	}

	s.send(subject, body)
	return nil
}

func (s *StatusNotifier) handleAdminStatus(event events.DomainEvent) error {
	e, ok := event.(admin.AdminStatusChangedEvent)
	if !ok {
		return nil
	}

	subject := fmt.Sprintf("Admin %s: %s -> %s", e.Username, e.PreviousStatus, e.NewStatus)
	body := fmt.Sprintf("Admin %q (id %d) changed from %s to %s.", e.Username, e.AdminID, e.PreviousStatus, e.NewStatus)
	if e.ByQuota {
		body += "\n\nTriggered by data-limit enforcement."
	}
	if e.Reason != "" {
		body += fmt.Sprintf("\nReason: %s", e.Reason)
	}

	s.send(subject, body)
	return nil
}

// send delivers one notification, containing failures: a broken channel
// must never ripple back into the dispatcher.
func (s *StatusNotifier) send(subject, body string) {
	if err := s.notifier.Notify(context.Background(), subject, body); err != nil {
		s.logger.Warnw("failed to deliver status notification",
			"subject", subject,
			"error", err,
		)
	}
}
