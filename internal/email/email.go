package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

const (
	ProviderLog    = "log"
	ProviderSMTP   = "smtp"
	ProviderResend = "resend"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config selects and configures a Sender.
type Config struct {
	Provider     string
	From         string
	ResendAPIKey string
	SMTP         SMTPConfig
}

// LogSender logs emails instead of sending them, used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "email")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "email (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NewSender returns the Sender for cfg.Provider.
func NewSender(cfg Config, logger *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case ProviderLog:
		return NewLogSender(logger), nil
	case ProviderResend:
		return NewResendSender(cfg.ResendAPIKey, cfg.From), nil
	case ProviderSMTP:
		return NewSMTPSender(cfg.SMTP, cfg.From), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
