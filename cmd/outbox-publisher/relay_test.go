package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/outbox"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/registry"
)

const testTopic = "digistore-domain"

func completedRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(map[string]any{"transaction_id": uuid.NewString(), "order_number": "DS-1001", "amount": "19.99", "currency": "usd"})
	if err != nil {
		t.Fatal(err)
	}
	env, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now(), Data: data})
	if err != nil {
		t.Fatal(err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTransactionCompleted,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       env,
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

func newTestRelay(t *testing.T, rows *memRows, topics topicSource, maxAttempts int) (*Relay, *memDLQ) {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{DomainTopic: testTopic})
	if err != nil {
		t.Fatal(err)
	}
	dlq := &memDLQ{}
	relay, err := NewRelay(RelayParams{
		Outbox:      config.OutboxConfig{BatchSize: 10, PollIntervalMS: 5, MaxAttempts: maxAttempts},
		Logger:      logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:          noTx{},
		Rows:        rows,
		DeadLetters: dlq,
		Registry:    reg,
		Topics:      topics,
	})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return relay, dlq
}

func TestDrainPublishesAndRecordsFailuresPerRow(t *testing.T) {
	first, second := completedRow(t, 0), completedRow(t, 0)
	rows := &memRows{pending: []models.OutboxEvent{first, second}}
	topic := &scriptedTopic{errs: []error{errors.New("deadline exceeded"), nil}}
	relay, dlq := newTestRelay(t, rows, staticTopics{testTopic: topic}, 5)

	found, err := relay.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !found {
		t.Fatal("expected rows to be found")
	}
	if len(rows.failed) != 1 || rows.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", rows.failed)
	}
	if len(rows.published) != 1 || rows.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", rows.published)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("transient failure must not dead-letter")
	}

	sent := topic.sent[1]
	if sent.attrs["event_type"] != string(enums.EventTransactionCompleted) || sent.attrs["aggregate_id"] != second.AggregateID.String() {
		t.Fatalf("unexpected attributes %v", sent.attrs)
	}
	if string(sent.data) != string(second.Payload) {
		t.Fatal("payload must be forwarded unchanged")
	}
}

func TestDrainDeadLettersUnknownEventType(t *testing.T) {
	row := completedRow(t, 0)
	row.EventType = enums.OutboxEventType("seller_payout_sent")
	rows := &memRows{pending: []models.OutboxEvent{row}}
	relay, dlq := newTestRelay(t, rows, staticTopics{testTopic: &scriptedTopic{}}, 5)

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
	if string(dlq.entries[0].Payload) != string(row.Payload) {
		t.Fatal("dlq must keep the original payload")
	}
	if rows.terminal[row.ID] != 5 {
		t.Fatalf("expected row parked at attempt ceiling, got %d", rows.terminal[row.ID])
	}
}

func TestDrainDeadLettersAfterLastAttempt(t *testing.T) {
	row := completedRow(t, 2)
	rows := &memRows{pending: []models.OutboxEvent{row}}
	topic := &scriptedTopic{errs: []error{errors.New("unavailable")}}
	relay, dlq := newTestRelay(t, rows, staticTopics{testTopic: topic}, 3)

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max-attempts dlq entry, got %+v", dlq.entries)
	}
	if len(rows.failed) != 0 {
		t.Fatal("terminal rows must not also be marked failed")
	}
}

func TestDrainDeadLettersMissingTopic(t *testing.T) {
	row := completedRow(t, 0)
	rows := &memRows{pending: []models.OutboxEvent{row}}
	relay, dlq := newTestRelay(t, rows, staticTopics{}, 5)

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
}

func TestDrainReportsEmptyBatch(t *testing.T) {
	relay, _ := newTestRelay(t, &memRows{}, staticTopics{}, 5)
	found, err := relay.drain(context.Background())
	if err != nil || found {
		t.Fatalf("expected empty batch, got found=%v err=%v", found, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	relay, _ := newTestRelay(t, &memRows{}, staticTopics{}, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := relay.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type noTx struct{}

func (noTx) Ping(context.Context) error { return nil }

func (noTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

// memRows hands out its pending rows once, like a claimed batch.
type memRows struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  map[uuid.UUID]int
}

func (m *memRows) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	n := min(limit, len(m.pending))
	out := m.pending[:n]
	m.pending = m.pending[n:]
	return out, nil
}

func (m *memRows) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memRows) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memRows) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, attempts int) error {
	if m.terminal == nil {
		m.terminal = make(map[uuid.UUID]int)
	}
	m.terminal[id] = attempts
	return nil
}

type memDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memDLQ) Park(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type staticTopics map[string]topicPublisher

func (s staticTopics) Topic(name string) topicPublisher {
	return s[name]
}

type sentMessage struct {
	data  []byte
	attrs map[string]string
}

type scriptedTopic struct {
	errs []error
	sent []sentMessage
}

func (s *scriptedTopic) Publish(_ context.Context, data []byte, attrs map[string]string) error {
	s.sent = append(s.sent, sentMessage{data: data, attrs: attrs})
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}
