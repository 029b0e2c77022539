package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/ndenisov/accounts/internal/logger"
)

// Mailer is a fire-and-forget outbound email capability.
// Callers decide whether a delivery failure matters; on the password-reset
// path it never does.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, html string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether the settings are complete enough to send
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// SMTP mailer built on go-mail
type SMTP struct {
	client *mail.Client
	from   string
}

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("error while creating mail client. Err: %w", err)
	}

	return &SMTP{client: client, from: cfg.From}, nil
}

func (s *SMTP) Send(ctx context.Context, to string, subject string, html string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("bad from address. Err: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("bad to address. Err: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("error while sending mail. Err: %w", err)
	}

	return nil
}

// LogMailer writes messages to the log instead of delivering them.
// Used when SMTP is not configured, so the reset flow keeps working in
// development without a mail server.
type LogMailer struct {
	Logger logger.Logger
}

func (m LogMailer) Send(_ context.Context, to string, subject string, _ string) error {
	m.Logger.Warn("mail delivery skipped, SMTP not configured", "to", to, "subject", subject)
	return nil
}
