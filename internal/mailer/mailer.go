// Package mailer sends certificate notification emails through Amazon
// SES. Sending is strictly best-effort: the issuance pipeline fires it in
// a goroutine and never fails a request over a delivery error.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Delivery makes three attempts in total, backing off 2s then 4s between
// them. That absorbs transient SES throttling without keeping goroutines
// alive for long.
const maxSendAttempts = 3

// initialBackoff doubles after each failed attempt. Variable so tests can
// shrink it.
var initialBackoff = 2 * time.Second

// sesAPI is the slice of the SES v2 client Send depends on.
type sesAPI interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends email via SES v2.
type Mailer struct {
	client      sesAPI
	fromAddress string
	fromName    string
}

// New builds a Mailer using the default AWS credential chain. Returns
// (nil, nil) when fromAddress is empty so email stays optional.
func New(ctx context.Context, region, fromAddress, fromName string) (*Mailer, error) {
	if fromAddress == "" {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Mailer{
		client:      sesv2.NewFromConfig(cfg),
		fromAddress: fromAddress,
		fromName:    fromName,
	}, nil
}

// Send delivers one message, retrying transient failures with doubling
// backoff. Returns the SES message ID of the successful attempt.
func (m *Mailer) Send(ctx context.Context, msg Message) (string, error) {
	if m == nil {
		return "", fmt.Errorf("mailer not configured")
	}

	from := m.fromAddress
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromAddress)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &sestypes.Destination{ToAddresses: []string{msg.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject)},
				Body: &sestypes.Body{
					Html: &sestypes.Content{Data: aws.String(msg.HTML)},
				},
			},
		},
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
			slog.Info("retrying email send", "to", msg.To, "attempt", attempt)
		}

		out, err := m.client.SendEmail(ctx, input)
		if err == nil {
			return aws.ToString(out.MessageId), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("send email to %s after %d attempts: %w", msg.To, maxSendAttempts, lastErr)
}
