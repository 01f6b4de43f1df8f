package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	sharedConfig "github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// EmailNotifier sends notifications over SMTP to a fixed recipient list.
type EmailNotifier struct {
	config     sharedConfig.EmailConfig
	recipients []string
	dialer     *gomail.Dialer
	logger     logger.Interface
}

func NewEmailNotifier(config sharedConfig.EmailConfig, recipients []string, log logger.Interface) *EmailNotifier {
	dialer := gomail.NewDialer(config.SMTPHost, config.SMTPPort, config.SMTPUser, config.SMTPPassword)

	return &EmailNotifier{
		config:     config,
		recipients: recipients,
		dialer:     dialer,
		logger:     log.Named("notify-email"),
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(n.config.FromAddress, n.config.FromName))
	m.SetHeader("To", n.recipients...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}

	n.logger.Debugw("notification email sent",
		"subject", subject,
		"recipients", len(n.recipients),
	)
	return nil
}
