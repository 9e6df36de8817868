// Package alerts delivers operator notifications for critical fleet
// events. The transport is pluggable: SendGrid for hosted delivery,
// plain SMTP for local relays, or a no-op sink when alerting is not
// configured.
package alerts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// Provider is the transport an alert is delivered over.
type Provider interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds alert delivery configuration.
type Config struct {
	// Provider type: "sendgrid", "smtp" or "noop"
	Provider string

	// From email address
	From string

	// Recipient addresses
	To []string

	// SendGrid configuration
	SendGridKey string

	// SMTP configuration (host:port, for Mailhog or a local relay)
	SMTPAddr string
}

// Service implements ports.AlertSender on top of a Provider.
type Service struct {
	config   Config
	provider Provider
	log      *zap.Logger
}

// NewService creates a new alert service for the configured provider.
func NewService(config Config, log *zap.Logger) (ports.AlertSender, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var provider Provider
	switch config.Provider {
	case "sendgrid":
		if config.SendGridKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires an api key")
		}
		provider = NewSendGridProvider(config.SendGridKey, config.From)
	case "smtp":
		if config.SMTPAddr == "" {
			return nil, fmt.Errorf("smtp provider requires an address")
		}
		provider = NewSMTPProvider(config.SMTPAddr, config.From)
	case "", "noop", "none":
		provider = noopProvider{log: log}
	default:
		return nil, fmt.Errorf("unknown alert provider %q", config.Provider)
	}

	return &Service{
		config:   config,
		provider: provider,
		log:      log,
	}, nil
}

// Send delivers an alert to every configured recipient.
func (s *Service) Send(ctx context.Context, alert ports.Alert) error {
	subject := formatSubject(alert)
	body := formatBody(alert)

	for _, to := range s.config.To {
		if err := s.provider.Send(ctx, to, subject, body); err != nil {
			return fmt.Errorf("failed to alert %s: %w", to, err)
		}
	}

	s.log.Debug("alert delivered",
		zap.String("title", alert.Title),
		zap.Int("recipients", len(s.config.To)),
	)
	return nil
}

func formatSubject(alert ports.Alert) string {
	severity := strings.ToUpper(alert.Severity)
	if severity == "" {
		severity = "INFO"
	}
	return fmt.Sprintf("[%s] %s", severity, alert.Title)
}

func formatBody(alert ports.Alert) string {
	var body strings.Builder
	body.WriteString(alert.Message)
	body.WriteString("\r\n\r\n")
	body.WriteString(fmt.Sprintf("Source: %s", alert.Source))
	if alert.SourceID != "" {
		body.WriteString(fmt.Sprintf(" (%s)", alert.SourceID))
	}
	body.WriteString("\r\n")
	if !alert.CreatedAt.IsZero() {
		body.WriteString(fmt.Sprintf("Time: %s\r\n", alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	}
	return body.String()
}

// noopProvider drops alerts, logging them at debug level so local runs
// still show what would have been sent.
type noopProvider struct {
	log *zap.Logger
}

func (p noopProvider) Send(ctx context.Context, to, subject, body string) error {
	p.log.Debug("alert dropped (noop provider)",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
