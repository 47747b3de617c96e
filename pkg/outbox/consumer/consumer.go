// Package consumer runs Pub/Sub subscriptions that carry outbox events. It
// owns envelope decoding, per-consumer dedupe and the ack/nack policy so
// individual consumers only see typed events.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/outbox"
)

// Event is an outbox event as seen by a subscriber.
type Event struct {
	ID            uuid.UUID
	Type          enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Actor         *outbox.ActorRef
	Data          json.RawMessage
	MessageID     string
}

// Handler processes one event. Returning an error nacks the message unless
// it is wrapped with Drop.
type Handler func(ctx context.Context, ev Event) error

// Claims records which events a consumer already handled.
type Claims interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type dropError struct{ err error }

func (d dropError) Error() string { return d.err.Error() }
func (d dropError) Unwrap() error { return d.err }

// Drop marks err as permanent: the message is acked and never redelivered.
func Drop(err error) error {
	if err == nil {
		return nil
	}
	return dropError{err: err}
}

// IsDropped reports whether err was marked permanent with Drop.
func IsDropped(err error) bool {
	var d dropError
	return errors.As(err, &d)
}

// Outcome is the delivery decision for one message.
type Outcome int

const (
	Ack Outcome = iota
	Nack
)

// Options configures a Loop.
type Options struct {
	Name         string
	Subscription receiver
	Claims       Claims
	Handle       Handler
	// Accept filters by event type before the body is decoded. Nil accepts all.
	Accept func(enums.OutboxEventType) bool
	Logger *logger.Logger
}

// Loop consumes one subscription.
type Loop struct {
	name   string
	sub    receiver
	claims Claims
	handle Handler
	accept func(enums.OutboxEventType) bool
	logg   *logger.Logger
}

func New(opts Options) (*Loop, error) {
	switch {
	case strings.TrimSpace(opts.Name) == "":
		return nil, errors.New("consumer name is required")
	case opts.Claims == nil:
		return nil, errors.New("claims store is required")
	case opts.Handle == nil:
		return nil, errors.New("handler is required")
	case opts.Logger == nil:
		return nil, errors.New("logger is required")
	}
	accept := opts.Accept
	if accept == nil {
		accept = func(enums.OutboxEventType) bool { return true }
	}
	return &Loop{
		name:   opts.Name,
		sub:    opts.Subscription,
		claims: opts.Claims,
		handle: opts.Handle,
		accept: accept,
		logg:   opts.Logger,
	}, nil
}

// Name identifies the consumer in logs and dedupe keys.
func (l *Loop) Name() string { return l.name }

// Run receives until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l.sub == nil {
		return fmt.Errorf("%s: subscription is required", l.name)
	}
	return l.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if l.Process(ctx, msg) == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process decides the fate of one message.
func (l *Loop) Process(ctx context.Context, msg *pubsub.Message) Outcome {
	ctx = l.logg.WithFields(ctx, map[string]any{
		"consumer":   l.name,
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	})

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		l.logg.Warn(ctx, "consumer.unknown_event_type")
		return Ack
	}
	if !l.accept(eventType) {
		return Ack
	}

	ev, err := Decode(msg)
	if err != nil {
		l.logg.Error(ctx, "consumer.malformed_message", err)
		return Ack
	}
	ctx = l.logg.WithFields(ctx, map[string]any{
		"event_id":     ev.ID.String(),
		"aggregate_id": ev.AggregateID,
	})

	fresh, err := l.claims.Claim(ctx, l.name, ev.ID)
	if err != nil {
		l.logg.Error(ctx, "consumer.claim_failed", err)
		return Nack
	}
	if !fresh {
		l.logg.Info(ctx, "consumer.duplicate")
		return Ack
	}

	err = l.handle(ctx, ev)
	switch {
	case err == nil:
		l.logg.Info(ctx, "consumer.handled")
		return Ack
	case IsDropped(err):
		l.logg.Error(ctx, "consumer.dropped", err)
		return Ack
	}

	l.logg.Error(ctx, "consumer.handler_failed", err)
	if relErr := l.claims.Release(ctx, l.name, ev.ID); relErr != nil {
		l.logg.Error(ctx, "consumer.release_failed", relErr)
	}
	return Nack
}

// Decode reads the stored outbox envelope plus the routing attributes the
// publisher attaches. Envelope fields win over attributes when both exist.
func Decode(msg *pubsub.Message) (Event, error) {
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	attr := func(k string) string { return strings.TrimSpace(msg.Attributes[k]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return Event{}, err
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return Event{}, err
	}

	rawID := strings.TrimSpace(env.EventID)
	if rawID == "" {
		rawID = attr("event_id")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Event{}, fmt.Errorf("event id %q: %w", rawID, err)
	}

	occurred := env.OccurredAt
	if occurred.IsZero() {
		if ts, perr := time.Parse(time.RFC3339Nano, attr("created_at")); perr == nil {
			occurred = ts
		}
	}

	return Event{
		ID:            id,
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   attr("aggregate_id"),
		OccurredAt:    occurred.UTC(),
		Actor:         env.Actor,
		Data:          env.Data,
		MessageID:     msg.ID,
	}, nil
}
