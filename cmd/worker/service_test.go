package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

type blockingConsumer struct {
	stopped chan struct{}
}

func (c *blockingConsumer) Run(ctx context.Context) error {
	<-ctx.Done()
	close(c.stopped)
	return ctx.Err()
}

type failingConsumer struct {
	err error
}

func (c failingConsumer) Run(context.Context) error {
	return c.err
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without consumers")
	}
	if _, err := NewService(ServiceParams{Consumers: map[string]Consumer{"x": failingConsumer{}}}); err == nil {
		t.Fatal("expected error without logger")
	}
}

func TestRunStopsSiblingsWhenConsumerFails(t *testing.T) {
	sibling := &blockingConsumer{stopped: make(chan struct{})}
	boom := errors.New("subscription gone")

	svc, err := NewService(ServiceParams{
		Logger: logger.Nop(),
		Consumers: map[string]Consumer{
			"email-relay":     sibling,
			"sales-analytics": failingConsumer{err: boom},
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
	select {
	case <-sibling.stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling consumer was not stopped")
	}
}

func TestRunFailsWhenDependencyUnready(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:    logger.Nop(),
		Consumers: map[string]Consumer{"email-relay": &blockingConsumer{stopped: make(chan struct{})}},
		Readiness: map[string]pinger{
			"redis": func(context.Context) error { return errors.New("refused") },
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:    logger.Nop(),
		Consumers: map[string]Consumer{"email-relay": &blockingConsumer{stopped: make(chan struct{})}},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
