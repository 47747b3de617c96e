package router

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/digistore-backend/internal/analytics/types"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/consumer"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/payloads"
)

var centsFactor = decimal.NewFromInt(100)

func cents(amount decimal.Decimal) int64 {
	return amount.Mul(centsFactor).Round(0).IntPart()
}

func idString(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	value := id.String()
	return &value
}

type projector struct {
	writer Writer
	logg   *logger.Logger
}

// sale writes one fact per purchased product.
func (p projector) sale(ctx context.Context, ev consumer.Event, event *payloads.TransactionCompletedEvent) error {
	occurredAt := event.CompletedAt
	if occurredAt.IsZero() {
		occurredAt = ev.OccurredAt
	}
	var buyerID *string
	if event.BuyerID != nil {
		buyerID = idString(*event.BuyerID)
	}

	rows := make([]types.SaleFactRow, 0, len(event.Lines))
	for _, line := range event.Lines {
		unit := cents(line.UnitPrice)
		rows = append(rows, types.SaleFactRow{
			EventID:        ev.ID.String(),
			EventType:      string(ev.Type),
			OccurredAt:     occurredAt.UTC(),
			TransactionID:  event.TransactionID.String(),
			OrderNumber:    event.OrderNumber,
			BuyerID:        buyerID,
			ProductID:      idString(line.ProductID),
			SellerID:       idString(line.SellerID),
			Quantity:       int64(line.Quantity),
			UnitPriceCents: &unit,
			GrossCents:     unit * int64(line.Quantity),
			DiscountCode:   event.DiscountCode,
			Currency:       event.Currency,
		})
	}
	if len(rows) == 0 {
		p.logg.Warn(ctx, "sale event without lines")
		return nil
	}
	return p.writer.InsertSales(ctx, rows...)
}

// refund writes a single negative fact for the refunded amount.
func (p projector) refund(ctx context.Context, ev consumer.Event, event *payloads.TransactionRefundedEvent) error {
	occurredAt := event.RefundedAt
	if occurredAt.IsZero() {
		occurredAt = ev.OccurredAt
	}
	return p.writer.InsertSales(ctx, types.SaleFactRow{
		EventID:       ev.ID.String(),
		EventType:     string(ev.Type),
		OccurredAt:    occurredAt.UTC(),
		TransactionID: event.TransactionID.String(),
		OrderNumber:   event.OrderNumber,
		GrossCents:    -cents(event.Amount),
		Currency:      event.Currency,
	})
}
