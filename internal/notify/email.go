package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/rs/zerolog"
)

// SMTPConfig holds the settings for outbound alert email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether enough settings are present to attempt delivery.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != "" && c.From != ""
}

// EmailNotifier sends alert emails over SMTP. Delivery is best-effort: a
// failure is returned to the caller for logging, never retried.
type EmailNotifier struct {
	config SMTPConfig
	logger zerolog.Logger
}

func NewEmailNotifier(cfg SMTPConfig, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{config: cfg, logger: logger}
}

var emailTemplate = template.Must(template.New("alert").Parse(`Location: {{.Location}}

{{.Body}}

---
Weather Agent Notification
`))

func (e *EmailNotifier) SendEmail(_ context.Context, to, subject, body, location string) error {
	if !e.config.Configured() {
		// Not an error: an unconfigured channel is skipped, matching the
		// behavior of a user who never enabled email.
		e.logger.Debug().Str("to", to).Str("subject", subject).Msg("smtp not configured, skipping email")
		return nil
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, struct {
		Location string
		Body     string
	}{Location: location, Body: body}); err != nil {
		return fmt.Errorf("render email template: %w", err)
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += buf.String()

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := smtp.SendMail(addr, auth, e.config.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
