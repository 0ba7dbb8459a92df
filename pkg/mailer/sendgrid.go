package mailer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Config contains credentials required to send through SendGrid.
type Config struct {
	APIKey    string
	FromName  string
	FromEmail string
}

// Service sends transactional email through SendGrid.
type Service struct {
	client *sendgrid.Client
	from   *mail.Email
	logger zerolog.Logger
}

// New constructs a SendGrid mailer.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.APIKey == "" || cfg.FromEmail == "" {
		return nil, fmt.Errorf("sendgrid api key and sender address must be provided")
	}

	return &Service{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger.With().Str("component", "mailer").Logger(),
	}, nil
}

// Send delivers a single message to the given recipient.
func (s *Service) Send(ctx context.Context, toName, toEmail, subject, plainText, htmlContent string) error {
	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail(toName, toEmail), plainText, htmlContent)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info().Str("to", toEmail).Str("subject", subject).Msg("mail delivered")

	return nil
}
