package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/digistore-backend/internal/analytics/types"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/consumer"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertSales(ctx context.Context, rows ...types.SaleFactRow) error
}

// Route handles one event type after its payload has been decoded.
type Route func(ctx context.Context, ev consumer.Event) error

// Typed adapts a handler over a concrete payload type. Undecodable payloads
// are dropped since redelivery cannot fix them.
func Typed[T any](fn func(ctx context.Context, ev consumer.Event, payload *T) error) Route {
	return func(ctx context.Context, ev consumer.Event) error {
		if len(ev.Data) == 0 {
			return consumer.Drop(fmt.Errorf("empty %s payload", ev.Type))
		}
		payload := new(T)
		if err := json.Unmarshal(ev.Data, payload); err != nil {
			return consumer.Drop(fmt.Errorf("decode %s payload: %w", ev.Type, err))
		}
		return fn(ctx, ev, payload)
	}
}

// Router maps sales-relevant events onto fact rows.
type Router struct {
	routes map[enums.OutboxEventType]Route
}

// NewRouter wires the sale and refund projections. overrides replace a
// default route; unknown event types in overrides are ignored.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Route) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	p := projector{writer: writer, logg: logg}
	routes := map[enums.OutboxEventType]Route{
		enums.EventTransactionCompleted: Typed(p.sale),
		enums.EventTransactionRefunded:  Typed(p.refund),
	}
	for t, r := range overrides {
		if _, known := routes[t]; known && r != nil {
			routes[t] = r
		}
	}
	return &Router{routes: routes}, nil
}

// Supports reports whether t produces analytics rows.
func (r *Router) Supports(t enums.OutboxEventType) bool {
	_, ok := r.routes[t]
	return ok
}

// Handle projects ev into fact rows.
func (r *Router) Handle(ctx context.Context, ev consumer.Event) error {
	route, ok := r.routes[ev.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, ev.Type)
	}
	return route(ctx, ev)
}
