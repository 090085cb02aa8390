package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/punchdeck/punchdeck/pkg/logger"
)

// Mailer is the outbound email collaborator. Send failures propagate
// to the caller as issuance failures.
type Mailer interface {
	SendOTPEmail(ctx context.Context, email, code string, expiresAt time.Time) error
}

// AWSSESMailer sends one-time codes using AWS SES
type AWSSESMailer struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESMailer creates a new AWS SES mailer
func NewAWSSESMailer(region, fromAddress string, logger *slog.Logger) (*AWSSESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESMailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendOTPEmail sends a verification code. Only hashed identifiers
// reach the logs; neither the code nor the address is recorded.
func (s *AWSSESMailer) SendOTPEmail(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	textBody := fmt.Sprintf(`Your verification code is:

    %s

This code expires in %d minutes. If you did not request it, you can
ignore this email; no changes will be made to your account.

This is an automated message. Please do not reply.
`, code, minutes)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 480px; margin: 0 auto; padding: 20px;">
    <h2>Your verification code</h2>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
    <p>This code expires in %d minutes.</p>
    <p>If you did not request it, you can ignore this email; no changes
    will be made to your account.</p>
    <hr>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply.</p>
  </div>
</body>
</html>`, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your verification code"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		s.logger.Error("failed to send OTP email",
			slog.String("recipient_hash", pkglogger.HashIdentifier(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("OTP email sent",
		slog.String("recipient_hash", pkglogger.HashIdentifier(email)))
	return nil
}
