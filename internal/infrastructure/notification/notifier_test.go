package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedConfig "github.com/vetiver-inc/vetiver/internal/shared/config"
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

func TestNew_SelectsChannelByMode(t *testing.T) {
	log := newNopLogger()
	emailCfg := sharedConfig.EmailConfig{SMTPHost: "localhost", SMTPPort: 1025, FromAddress: "ops@example.com"}

	t.Run("defaults to log delivery", func(t *testing.T) {
		n := New(sharedConfig.NotificationConfig{}, emailCfg, log)
		assert.IsType(t, &LogNotifier{}, n)
	})

	t.Run("log mode", func(t *testing.T) {
		n := New(sharedConfig.NotificationConfig{Mode: "log"}, emailCfg, log)
		assert.IsType(t, &LogNotifier{}, n)
	})

	t.Run("email mode with recipients", func(t *testing.T) {
		cfg := sharedConfig.NotificationConfig{Mode: "email", Recipients: []string{"oncall@example.com"}}
		n := New(cfg, emailCfg, log)
		assert.IsType(t, &EmailNotifier{}, n)
	})

	t.Run("email mode without recipients falls back to log", func(t *testing.T) {
		n := New(sharedConfig.NotificationConfig{Mode: "email"}, emailCfg, log)
		assert.IsType(t, &LogNotifier{}, n)
	})
}

func TestLogNotifier_Notify(t *testing.T) {
	n := NewLogNotifier(newNopLogger())
	assert.NoError(t, n.Notify(context.Background(), "Node edge-1: connected -> limited", "detail"))
}

func TestEmailNotifier_NotifyHonorsContext(t *testing.T) {
	n := NewEmailNotifier(
		sharedConfig.EmailConfig{SMTPHost: "localhost", SMTPPort: 1025},
		[]string{"oncall@example.com"},
		newNopLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Notify(ctx, "subject", "body")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
