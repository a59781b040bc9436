// Package email sends transactional mail via Amazon SES. Without a
// configured sender address the service is disabled and callers fall back to
// demo behavior (verification codes returned in API responses).
package email

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type Sender struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
	enabled   bool
}

func NewSender(ctx context.Context, awsRegion, fromEmail, fromName string) (*Sender, error) {
	if fromEmail == "" {
		log.Println("Email sender disabled: SES_FROM_EMAIL not configured")
		return &Sender{enabled: false}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Email sender enabled: from=%s, region=%s", fromEmail, awsRegion)
	return &Sender{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
		enabled:   true,
	}, nil
}

// Enabled reports whether mail is actually sent.
func (s *Sender) Enabled() bool {
	return s.enabled
}

// SendVerificationCode mails a signup code to the address. A disabled sender
// logs and returns nil so signup keeps working in demo mode.
func (s *Sender) SendVerificationCode(ctx context.Context, toEmail, code string) error {
	if !s.enabled {
		log.Printf("Skipping email send (sender disabled): verification code for %s", toEmail)
		return nil
	}

	subject := "Your MUZGPT Verification Code"
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
	<div style="max-width: 480px; margin: 0 auto; padding: 24px;">
		<h2>MUZGPT</h2>
		<p>Your verification code is:</p>
		<h1 style="letter-spacing: 6px;">%s</h1>
		<p>The code expires in 10 minutes. If you didn't request it, you can safely ignore this email.</p>
	</div>
</body>
</html>
`, code)
	textBody := fmt.Sprintf("Your MUZGPT verification code is: %s\n\nThe code expires in 10 minutes.\n", code)

	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody)},
					Text: &types.Content{Data: aws.String(textBody)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}
	log.Printf("Verification code sent to %s", toEmail)
	return nil
}
