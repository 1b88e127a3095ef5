package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	ErrKeyMissing           = errors.New("sendgrid api key is not set")
	ErrInvalidMailSender    = errors.New("invalid mail sender")
	ErrInvalidMailRecipient = errors.New("invalid mail recipient")
)

// Sender delivers one mail.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// SendgridSender sends through the SendGrid v3 API.
type SendgridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	to     *mail.Email
}

func NewSendgridSender(cfg *Config) (*SendgridSender, error) {
	if cfg.SendgridAPIKey == "" {
		return nil, ErrKeyMissing
	}
	if cfg.From == "" {
		return nil, ErrInvalidMailSender
	}
	if cfg.To == "" {
		return nil, ErrInvalidMailRecipient
	}

	return &SendgridSender{
		client: sendgrid.NewSendClient(cfg.SendgridAPIKey),
		from:   mail.NewEmail(cfg.From, cfg.From),
		to:     mail.NewEmail(cfg.To, cfg.To),
	}, nil
}

func (s *SendgridSender) Send(ctx context.Context, subject, body string) error {
	htmlBody := "<pre>" + html.EscapeString(body) + "</pre>"
	message := mail.NewSingleEmail(s.from, subject, s.to, body, htmlBody)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("failed to send email: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}
