package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/outbox"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	txID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.TransactionCompletedEvent{
		TransactionID: txID,
		OrderNumber:   "DS-20261016-ABCD",
		Amount:        decimal.RequireFromString("49.00"),
		Currency:      "usd",
		Lines:         []payloads.SaleLine{{ProductID: uuid.New(), SellerID: uuid.New(), Quantity: 1, UnitPrice: decimal.RequireFromString("49.00")}},
	})

	event := models.OutboxEvent{
		EventType:     enums.EventTransactionCompleted,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "domain-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.TransactionCompletedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.TransactionID != txID || len(payload.Lines) != 1 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope incomplete %+v", resolved.Envelope)
	}
}

func TestEventRegistryResolveRejects(t *testing.T) {
	reg := newTestEventRegistry(t)
	validPayload := mustEnvelope(t, mustMarshal(t, payloads.NotificationCreatedEvent{NotificationID: uuid.New()}))

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("seller_payout_sent"),
			AggregateType: enums.AggregateNotification,
			AggregateID:   uuid.New(),
			Payload:       validPayload,
		},
		"aggregate mismatch": {
			EventType:     enums.EventNotificationCreated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   uuid.New(),
			Payload:       validPayload,
		},
		"missing aggregate id": {
			EventType:     enums.EventNotificationCreated,
			AggregateType: enums.AggregateNotification,
			Payload:       validPayload,
		},
		"null payload": {
			EventType:     enums.EventNotificationCreated,
			AggregateType: enums.AggregateNotification,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventNotificationCreated,
			AggregateType: enums.AggregateNotification,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %v", err)
			}
		})
	}
}

func TestEventRegistryPayloadTypes(t *testing.T) {
	reg := newTestEventRegistry(t)
	refund := models.OutboxEvent{
		EventType:     enums.EventTransactionRefunded,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"transaction_id":"`+uuid.NewString()+`"}`)),
	}
	resolved, err := reg.Resolve(refund)
	if err != nil {
		t.Fatalf("resolve refund: %v", err)
	}
	if _, ok := resolved.Payload.(*payloads.TransactionRefundedEvent); !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}

	bad := refund
	bad.Payload = mustEnvelope(t, []byte(`{"transaction_id":42}`))
	if _, err := reg.Resolve(bad); err == nil {
		t.Fatal("expected decode failure for mistyped payload")
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected missing domain topic to fail")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "domain-topic"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func mustEnvelope(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	return mustMarshal(t, outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}
