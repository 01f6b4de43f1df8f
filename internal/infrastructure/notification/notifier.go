// Package notification delivers operator-facing status notifications
// through the channel selected in configuration.
package notification

import (
	"context"

	sharedConfig "github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// Notifier delivers one operator notification.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// New selects the notifier for the configured mode. Anything but a
// fully configured email mode falls back to log delivery.
func New(cfg sharedConfig.NotificationConfig, emailCfg sharedConfig.EmailConfig, log logger.Interface) Notifier {
	if cfg.Mode == "email" {
		if len(cfg.Recipients) == 0 {
			log.Warnw("email notification mode set without recipients, falling back to log")
			return NewLogNotifier(log)
		}
		return NewEmailNotifier(emailCfg, cfg.Recipients, log)
	}
	return NewLogNotifier(log)
}
