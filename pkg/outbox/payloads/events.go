package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleLine is one purchased product inside a completed transaction.
type SaleLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// TransactionCompletedEvent feeds the sales analytics sink.
type TransactionCompletedEvent struct {
	TransactionID  uuid.UUID       `json:"transaction_id"`
	OrderNumber    string          `json:"order_number"`
	BuyerID        *uuid.UUID      `json:"buyer_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	DiscountCode   *string         `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Lines          []SaleLine      `json:"lines"`
	CompletedAt    time.Time       `json:"completed_at"`
}

// TransactionRefundedEvent reverses a completed sale in analytics.
type TransactionRefundedEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	OrderNumber   string          `json:"order_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	RefundedAt    time.Time       `json:"refunded_at"`
}

// NotificationCreatedEvent asks the e-mail relay to mirror an inbox entry.
type NotificationCreatedEvent struct {
	NotificationID uuid.UUID `json:"notification_id"`
	UserID         uuid.UUID `json:"user_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Link           *string   `json:"link,omitempty"`
}
