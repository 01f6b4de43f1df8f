package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

type nopLogger struct{}

func newNopLogger() logger.Interface { return &nopLogger{} }

func (l *nopLogger) Debug(msg string, args ...any)                   {}
func (l *nopLogger) Info(msg string, args ...any)                    {}
func (l *nopLogger) Warn(msg string, args ...any)                    {}
func (l *nopLogger) Error(msg string, args ...any)                   {}
func (l *nopLogger) Fatal(msg string, args ...any)                   {}
func (l *nopLogger) With(args ...any) logger.Interface               { return l }
func (l *nopLogger) Named(name string) logger.Interface              { return l }
func (l *nopLogger) Debugw(msg string, keysAndValues ...interface{}) {}
func (l *nopLogger) Infow(msg string, keysAndValues ...interface{})  {}
func (l *nopLogger) Warnw(msg string, keysAndValues ...interface{})  {}
func (l *nopLogger) Errorw(msg string, keysAndValues ...interface{}) {}
func (l *nopLogger) Fatalw(msg string, keysAndValues ...interface{}) {}

type sentNotification struct {
	subject string
	body    string
}

// captureNotifier records every delivery attempt; err, when set, is
// returned from each attempt.
type captureNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *captureNotifier) Notify(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{subject: subject, body: body})
	return n.err
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *captureNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

func startDispatcher(t *testing.T) *events.InMemoryEventDispatcher {
	t.Helper()

	dispatcher := events.NewInMemoryEventDispatcher(10)
	require.NoError(t, dispatcher.Start())
	t.Cleanup(func() { _ = dispatcher.Stop() })
	return dispatcher
}

func TestStatusNotifier_NodeStatusChange(t *testing.T) {
	dispatcher := startDispatcher(t)
	capture := &captureNotifier{}

	notifier := NewStatusNotifier(capture, newNopLogger())
	require.NoError(t, notifier.Register(dispatcher))

	evt := node.NewNodeStatusChangedEvent(7, "edge-1", "connected", "limited", "data limit reached: 1200 of 1000 bytes used")
	require.NoError(t, dispatcher.Publish(evt))

	assert.Eventually(t, func() bool { return capture.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	sent := capture.all()[0]
	assert.Equal(t, "Node edge-1: connected -> limited", sent.subject)
	assert.Contains(t, sent.body, `Node "edge-1" (id 7)`)
	assert.Contains(t, sent.body, "data limit reached: 1200 of 1000 bytes used")
}

func TestStatusNotifier_MasterAndAdminEvents(t *testing.T) {
	dispatcher := startDispatcher(t)
	capture := &captureNotifier{}

	notifier := NewStatusNotifier(capture, newNopLogger())
	require.NoError(t, notifier.Register(dispatcher))

	require.NoError(t, dispatcher.Publish(node.NewMasterStatusChangedEvent("connected", "limited", "master data limit reached")))
	require.NoError(t, dispatcher.Publish(admin.NewAdminStatusChangedEvent(3, "tenant-a", "active", "disabled", "admin data limit reached: 1500 of 1000 bytes used", true)))
	// No subscription exists for user events; they must pass through silently.
	require.NoError(t, dispatcher.Publish(user.NewUserStatusChangedEvent(9, "alice", "active", "disabled", "suspended")))

	assert.Eventually(t, func() bool { return capture.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	subjects := make(map[string]string, 2)
	for _, s := range capture.all() {
		subjects[s.subject] = s.body
	}

	masterBody, ok := subjects["Master engine: connected -> limited"]
	require.True(t, ok)
	assert.Contains(t, masterBody, "master data limit reached")

	adminBody, ok := subjects["Admin tenant-a: active -> disabled"]
	require.True(t, ok)
	assert.Contains(t, adminBody, "Triggered by data-limit enforcement.")
	assert.Contains(t, adminBody, "Reason: admin data limit reached")

	// Give the unsubscribed event a moment; the count must not move.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, capture.count())
}

func TestStatusNotifier_DeliveryFailureIsContained(t *testing.T) {
	dispatcher := startDispatcher(t)
	capture := &captureNotifier{err: errors.New("smtp: connection refused")}

	notifier := NewStatusNotifier(capture, newNopLogger())
	require.NoError(t, notifier.Register(dispatcher))

	require.NoError(t, dispatcher.Publish(node.NewNodeStatusChangedEvent(1, "edge-1", "connecting", "connected", "")))
	require.NoError(t, dispatcher.Publish(node.NewNodeStatusChangedEvent(2, "edge-2", "connecting", "connected", "")))

	// Both deliveries are attempted despite every attempt failing.
	assert.Eventually(t, func() bool { return capture.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}
