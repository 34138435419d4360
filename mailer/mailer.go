// Package mailer delivers the portal's transactional email.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendEndpoint = "/v3/mail/send"

// Config holds sender identity and the SendGrid credentials.
type Config struct {
	APIKey    string
	FromName  string
	FromEmail string
	// Host overrides the SendGrid API host, mainly for tests.
	Host string
	// Sandbox asks SendGrid to validate but not deliver messages.
	Sandbox bool
}

// SendGridMailer sends email through the SendGrid v3 API.
type SendGridMailer struct {
	cfg Config
	log *slog.Logger
}

// NewSendGridMailer creates a mailer. An API key and sender address are required.
func NewSendGridMailer(cfg Config, log *slog.Logger) (*SendGridMailer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid API key is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("sender email is required")
	}
	return &SendGridMailer{cfg: cfg, log: log}, nil
}

// SendVerificationCode implements interfaces.Mailer.
func (m *SendGridMailer) SendVerificationCode(ctx context.Context, to string, code string) error {
	subject, plain, html := verificationCodeContent(code)
	return m.send(ctx, to, subject, plain, html)
}

// SendOwnerInvite implements interfaces.Mailer.
func (m *SendGridMailer) SendOwnerInvite(ctx context.Context, to string, registerURL string) error {
	subject, plain, html := ownerInviteContent(registerURL)
	return m.send(ctx, to, subject, plain, html)
}

func (m *SendGridMailer) send(ctx context.Context, to, subject, plain, html string) error {
	from := mail.NewEmail(m.cfg.FromName, m.cfg.FromEmail)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), plain, html)
	if m.cfg.Sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		message.SetMailSettings(ms)
	}

	// sendgrid.Client keeps the request body on itself, so each send gets its own
	request := sendgrid.GetRequest(m.cfg.APIKey, sendEndpoint, m.cfg.Host)
	request.Method = "POST"
	client := &sendgrid.Client{Request: request}

	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email via sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected email: status %d: %s", resp.StatusCode, resp.Body)
	}

	m.log.Debug("Sent email", slog.String("subject", subject), slog.Int("status", resp.StatusCode))
	return nil
}

// LogMailer logs messages instead of sending them. Used in development.
type LogMailer struct {
	log *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

// SendVerificationCode implements interfaces.Mailer.
func (m *LogMailer) SendVerificationCode(ctx context.Context, to string, code string) error {
	m.log.Info("Email verification code", slog.String("to", to), slog.String("code", code))
	return nil
}

// SendOwnerInvite implements interfaces.Mailer.
func (m *LogMailer) SendOwnerInvite(ctx context.Context, to string, registerURL string) error {
	m.log.Info("Owner node invitation", slog.String("to", to), slog.String("url", registerURL))
	return nil
}

func verificationCodeContent(code string) (subject, plain, html string) {
	subject = "Verify your email address"
	plain = fmt.Sprintf("Your verification code is %s", code)
	html = fmt.Sprintf("<p>Your verification code is <strong>%s</strong></p>", code)
	return subject, plain, html
}

func ownerInviteContent(registerURL string) (subject, plain, html string) {
	subject = "You have been invited to the Casper Association member portal"
	plain = fmt.Sprintf("You were listed as an owner of a Casper validator node. Register at %s", registerURL)
	html = fmt.Sprintf(`<p>You were listed as an owner of a Casper validator node.</p><p><a href="%s">Register here</a></p>`, registerURL)
	return subject, plain, html
}
