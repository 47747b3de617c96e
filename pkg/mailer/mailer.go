// Package mailer delivers transactional e-mail through SendGrid.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

// Message is a single-recipient e-mail.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid is the production Sender.
type SendGrid struct {
	api      sendgridAPI
	from     *mail.Email
	logg     *logger.Logger
	disabled bool
}

// New builds a SendGrid sender. Without an API key the sender logs and drops
// messages so local environments work without credentials.
func New(cfg config.SendgridConfig, logg *logger.Logger) (*SendGrid, error) {
	key := strings.TrimSpace(cfg.APIKey)
	from := strings.TrimSpace(cfg.DefaultFrom)
	if key != "" && from == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	s := &SendGrid{
		from:     mail.NewEmail(cfg.FromName, from),
		logg:     logg,
		disabled: key == "",
	}
	if key != "" {
		s.api = sendgrid.NewSendClient(key)
	}
	return s, nil
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if s.disabled {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "to", msg.ToEmail), "sendgrid disabled; dropping e-mail "+msg.Subject)
		}
		return nil
	}

	email := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.ToEmail), msg.Text, msg.HTML)
	resp, err := s.api.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

func (m Message) validate() error {
	if strings.TrimSpace(m.ToEmail) == "" {
		return errors.New("recipient e-mail is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("subject is required")
	}
	if m.Text == "" && m.HTML == "" {
		return errors.New("message body is required")
	}
	return nil
}
