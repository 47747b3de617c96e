package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/pkg/redis"
)

const defaultTTL = 72 * time.Hour

// Ledger tracks per-consumer event claims in Redis under
// "evt:processed:<consumer>" scoped keys. A claim outlives Pub/Sub's
// redelivery window so late duplicates are still recognised.
type Ledger struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewLedger returns a claim ledger. A zero ttl uses three days.
func NewLedger(store redis.IdempotencyStore, ttl time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Ledger{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim reports true when this call is the first to see eventID for consumer.
// The stored value is the claim time, which helps when debugging stuck keys.
func (l *Ledger) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return l.store.SetNX(ctx, key, l.now().UTC().Format(time.RFC3339), l.ttl)
}

// Release drops a claim so the next delivery is processed again.
func (l *Ledger) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}

func (l *Ledger) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return l.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
