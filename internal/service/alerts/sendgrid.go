package alerts

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridProvider delivers alerts through the SendGrid API.
type SendGridProvider struct {
	from   string
	client *sendgrid.Client
}

// NewSendGridProvider creates a new SendGrid provider.
func NewSendGridProvider(apiKey, from string) *SendGridProvider {
	return &SendGridProvider{
		from:   from,
		client: sendgrid.NewSendClient(apiKey),
	}
}

// Send delivers a plain-text alert email using SendGrid.
func (p *SendGridProvider) Send(ctx context.Context, to, subject, body string) error {
	from := mail.NewEmail("", p.from)
	toEmail := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, toEmail, body, "")

	response, err := p.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid error: %w", err)
	}

	// SendGrid returns 2xx for success
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	return nil
}
