package notify

import (
	"context"

	"github.com/camprush/camprush/internal/clients/sendgrid"
	"github.com/camprush/camprush/internal/clients/twilio"
)

//go:generate mockgen -source=sender.go -destination=sender_mock.go -package=notify

// Sender delivers rendered content on one channel.
type Sender interface {
	Send(ctx context.Context, to Preferences, messageID string, c Content) error
}

type EmailSender struct {
	client sendgrid.Client
}

func NewEmailSender(client sendgrid.Client) *EmailSender {
	return &EmailSender{client: client}
}

func (s *EmailSender) Send(ctx context.Context, to Preferences, messageID string, c Content) error {
	_, err := s.client.Send(ctx, sendgrid.SendEmailRequest{
		To:         []sendgrid.EmailAddress{{Email: to.Email, Name: to.Name}},
		Subject:    c.Subject,
		Text:       c.Body,
		Categories: []string{"camprush"},
		CustomArgs: map[string]string{"message_id": messageID},
	})
	return err
}

type SMSSender struct {
	client twilio.Client
}

func NewSMSSender(client twilio.Client) *SMSSender {
	return &SMSSender{client: client}
}

func (s *SMSSender) Send(ctx context.Context, to Preferences, _ string, c Content) error {
	_, err := s.client.SendSMS(ctx, to.Phone, c.Subject+"\n"+c.Body)
	return err
}
