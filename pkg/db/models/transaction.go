package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// Transaction is the authoritative purchase record; one per checkout session.
type Transaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber       string                  `gorm:"column:order_number;not null;uniqueIndex" json:"orderNumber"`
	BuyerID           *uuid.UUID              `gorm:"column:buyer_id;type:uuid;index" json:"buyerId,omitempty"`
	BuyerEmail        string                  `gorm:"column:buyer_email;not null;default:''" json:"buyerEmail"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          string                  `gorm:"column:currency;not null;default:usd" json:"currency"`
	Status            enums.TransactionStatus `gorm:"column:status;type:text;not null;default:pending" json:"status"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null" json:"paymentMethod"`
	ExternalSessionID string                  `gorm:"column:external_session_id;not null;uniqueIndex" json:"externalSessionId"`
	PaymentIntentID   *string                 `gorm:"column:payment_intent_id;index" json:"paymentIntentId,omitempty"`
	DiscountCode      *string                 `gorm:"column:discount_code" json:"discountCode,omitempty"`
	DiscountAmount    decimal.Decimal         `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0" json:"discountAmount"`
	GitHubUsername    *string                 `gorm:"column:github_username" json:"githubUsername,omitempty"`
	Items             []TransactionItem       `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"items"`
	CompletedAt       *time.Time              `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// ProductIDs returns the purchased product references in line order.
func (t *Transaction) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.Items))
	for _, item := range t.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// TransactionItem records a purchased product and the price paid at checkout time.
type TransactionItem struct {
	TransactionID uuid.UUID       `gorm:"column:transaction_id;type:uuid;primaryKey" json:"-"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey" json:"productId"`
	Quantity      int             `gorm:"column:quantity;not null;default:1" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unitPrice"`
}

// Fulfillment is the ledger row for one product of one transaction.
type Fulfillment struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TransactionID uuid.UUID               `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex:fulfillments_transaction_product_key" json:"transactionId"`
	ProductID     uuid.UUID               `gorm:"column:product_id;type:uuid;not null;uniqueIndex:fulfillments_transaction_product_key" json:"productId"`
	Status        enums.FulfillmentStatus `gorm:"column:status;type:text;not null" json:"status"`
	Attempts      int                     `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError     *string                 `gorm:"column:last_error" json:"lastError,omitempty"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Earning credits a seller for one product of a completed transaction.
type Earning struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SellerID      uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index" json:"sellerId"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null" json:"productId"`
	TransactionID uuid.UUID       `gorm:"column:transaction_id;type:uuid;not null" json:"transactionId"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
