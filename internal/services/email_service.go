package services

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

type EmailService struct {
	Client *resend.Client
	From   string
	log    *zap.Logger
}

func NewEmailService(apiKey, fromEmail string, log *zap.Logger) *EmailService {
	if log == nil {
		log = zap.NewNop()
	}
	if fromEmail == "" {
		log.Warn("FROM_EMAIL is empty, using the Resend test sender")
		fromEmail = "onboarding@resend.dev"
	}
	return &EmailService{
		Client: resend.NewClient(apiKey),
		From:   fromEmail,
		log:    log,
	}
}

func (es *EmailService) SendNotificationEmail(ctx context.Context, to, subject, message string) error {
	params := &resend.SendEmailRequest{
		From:    es.From,
		To:      []string{to},
		Subject: subject,
		Html:    renderNotificationEmail(subject, message),
	}

	sent, err := es.Client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	es.log.Debug("email sent", zap.String("to", to), zap.String("id", sent.Id))
	return nil
}

func renderNotificationEmail(subject, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>%s</h2>
        <p>%s</p>
        <div class="footer">
            <p>This is an automated message from GigSafe, please do not reply.</p>
        </div>
    </div>
</body>
</html>`, html.EscapeString(subject), html.EscapeString(message))
}
