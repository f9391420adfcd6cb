package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/tasktrack/pkg/logger"
)

// Notifier sends account notices. Delivery is best-effort: callers log failures
// and carry on.
type Notifier interface {
	SendRegistrationNotice(ctx context.Context, email, displayName string) error
}

// NoopNotifier is used when no mail transport is configured
type NoopNotifier struct{}

func (NoopNotifier) SendRegistrationNotice(ctx context.Context, email, displayName string) error {
	return nil
}

// SESAPI is the subset of the SES client used by SESNotifier
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends notices through AWS SES
type SESNotifier struct {
	client      SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS credential chain for region
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewSESNotifierWithClient wraps an existing SES client
func NewSESNotifierWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// SendRegistrationNotice tells a new user their account exists
func (n *SESNotifier) SendRegistrationNotice(ctx context.Context, email, displayName string) error {
	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <p>Hi %s,</p>
    <p>Your task tracker account has been created. You can sign in with this email address.</p>
    <p>If you did not create this account, please contact support.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply.</p>
</body>
</html>
`, html.EscapeString(displayName))

	textBody := fmt.Sprintf(`Hi %s,

Your task tracker account has been created. You can sign in with this email address.

If you did not create this account, please contact support.

This is an automated message. Please do not reply.
`, displayName)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Welcome to your task tracker"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send registration notice: %w", err)
	}

	n.logger.Info("registration notice sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
