package notification

import (
	"context"

	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// LogNotifier writes notifications to the structured log. The default
// channel, and the fallback when email is not configured.
type LogNotifier struct {
	logger logger.Interface
}

func NewLogNotifier(log logger.Interface) *LogNotifier {
	return &LogNotifier{logger: log.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, subject, body string) error {
	n.logger.Infow("status notification",
		"subject", subject,
		"body", body,
	)
	return nil
}
