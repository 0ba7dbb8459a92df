package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/certify-go-api/internal/models"
	"github.com/noah-isme/certify-go-api/internal/repository"
)

// Mailer delivers a single transactional message.
type Mailer interface {
	Send(ctx context.Context, toName, toEmail, subject, plainText, htmlContent string) error
}

// EmailDecisionNotifier mails the user when an admin approves or rejects
// their certification review.
type EmailDecisionNotifier struct {
	users  repository.UserRepository
	mailer Mailer
	logger zerolog.Logger
}

// NewEmailDecisionNotifier constructs an email-backed notifier.
func NewEmailDecisionNotifier(users repository.UserRepository, mailer Mailer, logger zerolog.Logger) *EmailDecisionNotifier {
	return &EmailDecisionNotifier{
		users:  users,
		mailer: mailer,
		logger: logger.With().Str("component", "decision_notifier").Logger(),
	}
}

// NotifyDecision implements DecisionNotifier.
func (n *EmailDecisionNotifier) NotifyDecision(ctx context.Context, workflow models.CertificationWorkflow, approved bool, note string) error {
	user, err := n.users.GetByID(ctx, workflow.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve notification recipient: %w", err)
	}

	subject := fmt.Sprintf("Level %d certification review", workflow.Level)
	var body string
	if approved {
		body = fmt.Sprintf("Your level %d certification has been approved. You can now sign your contract.", workflow.Level)
	} else {
		body = fmt.Sprintf("Your level %d certification was not approved this time. You may retake the exam.", workflow.Level)
	}
	if note != "" {
		body = body + "\n\nReviewer note: " + note
	}

	return n.mailer.Send(ctx, user.Name, user.Email, subject, body, "")
}

// LogDecisionNotifier is a basic notifier that only logs decisions. Used when
// no mail provider is configured.
type LogDecisionNotifier struct {
	logger zerolog.Logger
}

// NewLogDecisionNotifier constructs a logging notifier.
func NewLogDecisionNotifier(logger zerolog.Logger) *LogDecisionNotifier {
	return &LogDecisionNotifier{logger: logger.With().Str("component", "decision_notifier").Logger()}
}

// NotifyDecision logs the decision and returns nil to indicate success.
func (l *LogDecisionNotifier) NotifyDecision(ctx context.Context, workflow models.CertificationWorkflow, approved bool, note string) error {
	l.logger.Info().
		Uint("user_id", workflow.UserID).
		Int("level", workflow.Level).
		Bool("approved", approved).
		Msg("certification decision recorded")
	return nil
}
