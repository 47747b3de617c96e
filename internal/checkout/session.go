package checkout

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/digistore-backend/internal/transactions"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// Session metadata keys. Each purchased line is stored under item_<n> as
// "<product id>:<quantity>:<unit cents>" so the session alone can rebuild the purchase.
const (
	MetaUserID         = "user_id"
	MetaDiscountCode   = "discount_code"
	MetaDiscountAmount = "discount_amount"
	MetaGitHubUsername = "github_username"
	MetaItemCount      = "item_count"
	metaItemPrefix     = "item_"

	// GuestReference marks sessions opened without a signed-in buyer.
	GuestReference = "guest"
	// GitHubFieldKey is the hosted checkout custom field collecting the buyer's GitHub login.
	GitHubFieldKey = "githubusername"

	// Stripe caps metadata at 50 keys; the fixed keys above use five.
	MaxItems = 40
)

var hundred = decimal.NewFromInt(100)

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units to a two-place decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func encodeItem(productID uuid.UUID, quantity int, unitCents int64) string {
	return fmt.Sprintf("%s:%d:%d", productID, quantity, unitCents)
}

func decodeItem(value string) (models.TransactionItem, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return models.TransactionItem{}, fmt.Errorf("malformed item %q", value)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return models.TransactionItem{}, fmt.Errorf("item product id: %w", err)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil || qty < 1 {
		return models.TransactionItem{}, fmt.Errorf("item quantity %q", parts[1])
	}
	cents, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return models.TransactionItem{}, fmt.Errorf("item price: %w", err)
	}
	return models.TransactionItem{ProductID: id, Quantity: qty, UnitPrice: FromCents(cents)}, nil
}

// PurchasedItems decodes the purchased lines recorded on the session metadata.
func PurchasedItems(metadata map[string]string) ([]models.TransactionItem, error) {
	count, err := strconv.Atoi(metadata[MetaItemCount])
	if err != nil || count < 1 {
		return nil, fmt.Errorf("session metadata has no items")
	}
	items := make([]models.TransactionItem, 0, count)
	for i := 0; i < count; i++ {
		item, err := decodeItem(metadata[metaItemPrefix+strconv.Itoa(i)])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GitHubUsername prefers the custom field typed at checkout over the metadata copy.
func GitHubUsername(sess *stripe.CheckoutSession) *string {
	if sess == nil {
		return nil
	}
	for _, field := range sess.CustomFields {
		if field == nil || field.Key != GitHubFieldKey || field.Text == nil {
			continue
		}
		if value := strings.TrimSpace(field.Text.Value); value != "" {
			return &value
		}
	}
	if value := strings.TrimSpace(sess.Metadata[MetaGitHubUsername]); value != "" {
		return &value
	}
	return nil
}

// BuyerID reads the signed-in buyer; guests yield nil.
func BuyerID(sess *stripe.CheckoutSession) *uuid.UUID {
	if sess == nil {
		return nil
	}
	for _, raw := range []string{sess.ClientReferenceID, sess.Metadata[MetaUserID]} {
		if raw == "" || raw == GuestReference {
			continue
		}
		if id, err := uuid.Parse(raw); err == nil {
			return &id
		}
	}
	return nil
}

func buyerEmail(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return sess.CustomerDetails.Email
	}
	return sess.CustomerEmail
}

// PaymentIntentID returns the intent id whether or not the field was expanded.
func PaymentIntentID(sess *stripe.CheckoutSession) *string {
	if sess == nil || sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return nil
	}
	id := sess.PaymentIntent.ID
	return &id
}

// TransactionFromSession builds the pending transaction a session describes.
func TransactionFromSession(sess *stripe.CheckoutSession, now time.Time) (*models.Transaction, error) {
	if sess == nil || sess.ID == "" {
		return nil, fmt.Errorf("checkout session is required")
	}
	items, err := PurchasedItems(sess.Metadata)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:                uuid.New(),
		OrderNumber:       transactions.NewOrderNumber(now),
		BuyerID:           BuyerID(sess),
		BuyerEmail:        buyerEmail(sess),
		Amount:            FromCents(sess.AmountTotal),
		Currency:          string(sess.Currency),
		Status:            enums.TransactionStatusPending,
		PaymentMethod:     enums.PaymentMethodStripeCheckout,
		ExternalSessionID: sess.ID,
		PaymentIntentID:   PaymentIntentID(sess),
		GitHubUsername:    GitHubUsername(sess),
		Items:             items,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if txn.Currency == "" {
		txn.Currency = "usd"
	}
	if code := strings.TrimSpace(sess.Metadata[MetaDiscountCode]); code != "" {
		txn.DiscountCode = &code
		if amount, err := decimal.NewFromString(sess.Metadata[MetaDiscountAmount]); err == nil {
			txn.DiscountAmount = amount
		}
	}
	return txn, nil
}
