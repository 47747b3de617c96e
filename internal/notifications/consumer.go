package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/mailer"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/consumer"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/payloads"
)

const emailRelayConsumer = "notification-email"

type recipientLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RelayParams wires the notification e-mail consumer.
type RelayParams struct {
	Users        recipientLookup
	Sender       mailer.Sender
	Subscription consumer.Options
	// StorefrontURL prefixes relative notification links.
	StorefrontURL string
	Logger        *logger.Logger
}

// EmailRelay mirrors new inbox entries to the recipient's e-mail address.
type EmailRelay struct {
	*consumer.Loop
	users      recipientLookup
	sender     mailer.Sender
	storefront string
}

// NewEmailRelay builds the relay; Subscription supplies the receiver and claims.
func NewEmailRelay(p RelayParams) (*EmailRelay, error) {
	if p.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if p.Sender == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	r := &EmailRelay{
		users:      p.Users,
		sender:     p.Sender,
		storefront: strings.TrimRight(p.StorefrontURL, "/"),
	}

	opts := p.Subscription
	opts.Name = emailRelayConsumer
	opts.Logger = p.Logger
	opts.Handle = r.handle
	opts.Accept = func(t enums.OutboxEventType) bool { return t == enums.EventNotificationCreated }
	loop, err := consumer.New(opts)
	if err != nil {
		return nil, fmt.Errorf("email relay: %w", err)
	}
	r.Loop = loop
	return r, nil
}

func (r *EmailRelay) handle(ctx context.Context, ev consumer.Event) error {
	var payload payloads.NotificationCreatedEvent
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return consumer.Drop(fmt.Errorf("decode notification payload: %w", err))
	}

	user, err := r.users.FindByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if user == nil {
		// Account deleted since the notification was written.
		return nil
	}

	text := payload.Message
	if link := r.absolute(payload.Link); link != "" {
		text += "\n\n" + link
	}
	return r.sender.Send(ctx, mailer.Message{
		ToEmail: user.Email,
		ToName:  user.Name,
		Subject: payload.Title,
		Text:    text,
	})
}

func (r *EmailRelay) absolute(link *string) string {
	if link == nil || *link == "" {
		return ""
	}
	if strings.HasPrefix(*link, "/") {
		return r.storefront + *link
	}
	return *link
}
