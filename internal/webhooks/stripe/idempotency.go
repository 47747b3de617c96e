package stripewebhook

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/redis"
)

// EventGuard claims provider event ids so redelivered events are acknowledged once.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventGuard, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency store is required")
	}
	if ttl <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event guard ttl must be positive")
	}
	if scope == "" {
		scope = "stripe-webhook"
	}
	return &EventGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim returns true when this call took ownership of the event. A false result
// means another delivery already claimed it.
func (g *EventGuard) Claim(ctx context.Context, event *stripe.Event) (bool, error) {
	if event == nil || event.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	claimed, err := g.store.SetNX(ctx, g.key(event.ID), string(event.Type), g.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event")
	}
	return claimed, nil
}

// Release drops the claim so the provider's retry is processed again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := g.store.Del(ctx, g.key(eventID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release webhook event")
	}
	return nil
}

func (g *EventGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
