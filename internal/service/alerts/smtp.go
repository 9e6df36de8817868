package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPProvider delivers alerts through a plain SMTP relay. It is meant
// for development with Mailhog or an unauthenticated local relay.
type SMTPProvider struct {
	addr string
	from string
}

// NewSMTPProvider creates a new SMTP provider for addr (host:port).
func NewSMTPProvider(addr, from string) *SMTPProvider {
	return &SMTPProvider{
		addr: addr,
		from: from,
	}
}

// Send delivers a plain-text alert email over SMTP.
func (p *SMTPProvider) Send(ctx context.Context, to, subject, body string) error {
	headers := map[string]string{
		"From":         p.from,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/plain; charset=UTF-8",
	}

	var message strings.Builder
	for key, value := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", key, value))
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	if err := smtp.SendMail(p.addr, nil, p.from, []string{to}, []byte(message.String())); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}

	return nil
}
