package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/digistore-backend/internal/analytics/router"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/consumer"
)

const consumerName = "sales-analytics"

// Projector turns events into analytics rows.
type Projector interface {
	Supports(t enums.OutboxEventType) bool
	Handle(ctx context.Context, ev consumer.Event) error
}

// Service streams completed and refunded transactions into the sales fact
// table. Event types the projector does not track are acked unclaimed.
type Service struct {
	*consumer.Loop
}

// NewService wires the projector behind a deduplicating subscription loop.
func NewService(sub consumer.Options, projector Projector, logg *logger.Logger) (*Service, error) {
	if projector == nil {
		return nil, errors.New("analytics projector is required")
	}
	sub.Name = consumerName
	sub.Logger = logg
	sub.Accept = projector.Supports
	sub.Handle = func(ctx context.Context, ev consumer.Event) error {
		err := projector.Handle(ctx, ev)
		if errors.Is(err, router.ErrUnsupportedEventType) {
			return consumer.Drop(err)
		}
		return err
	}
	loop, err := consumer.New(sub)
	if err != nil {
		return nil, fmt.Errorf("analytics worker: %w", err)
	}
	return &Service{Loop: loop}, nil
}
