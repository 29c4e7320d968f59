package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/usermgmt/pkg/logger"
)

// Mailer delivers account emails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, link string, expiresAt time.Time) error
}

// sesAPI is the subset of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends email through Amazon SES.
type SESMailer struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESMailer loads the default AWS credential chain for region.
func NewSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSESMailer(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func newSESMailer(client sesAPI, fromAddress string, logger *slog.Logger) *SESMailer {
	return &SESMailer{client: client, fromAddress: fromAddress, logger: logger}
}

func (m *SESMailer) SendVerificationEmail(ctx context.Context, to, link string, expiresAt time.Time) error {
	subject, text, html := verificationMessage(link, expiresAt)

	out, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.fromAddress),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
				Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		m.logger.Error("failed to send verification email via SES",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("verification email sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

// LogMailer writes the message to the log instead of sending it. Used in
// development and when no provider is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, to, link string, expiresAt time.Time) error {
	m.logger.InfoContext(ctx, "verification email (not sent)",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("link", link),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

func verificationMessage(link string, expiresAt time.Time) (subject, text, html string) {
	subject = "Verify your email address"
	expiry := expiresAt.UTC().Format("2006-01-02 15:04 MST")

	text = fmt.Sprintf(`Welcome!

Confirm your email address by opening the link below:

%s

The link expires at %s. If you did not create an account you can ignore this message.
`, link, expiry)

	html = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Verify your email address</h2>
  <p>Confirm your email address by clicking the button below.</p>
  <p><a href="%s" style="background:#0066cc;color:#fff;padding:10px 20px;text-decoration:none;border-radius:4px;">Verify email</a></p>
  <p>Or paste this link into your browser:<br><code>%s</code></p>
  <p style="color:#666;font-size:12px;">The link expires at %s. If you did not create an account you can ignore this message.</p>
</body>
</html>
`, link, link, expiry)

	return subject, text, html
}
