package enums

import "slices"

// TransactionStatus tracks a purchase from checkout through settlement.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusFailed,
	TransactionStatusRefunded,
}

func (s TransactionStatus) IsValid() bool { return slices.Contains(validTransactionStatuses, s) }

func ParseTransactionStatus(value string) (TransactionStatus, error) {
	return parse("transaction status", validTransactionStatuses, value)
}

// PaymentMethod tags how a transaction was paid.
type PaymentMethod string

const (
	PaymentMethodStripeCheckout PaymentMethod = "stripe_checkout"
)

// FulfillmentStatus is the outcome of a per-product fulfillment attempt.
type FulfillmentStatus string

const (
	FulfillmentStatusSucceeded FulfillmentStatus = "succeeded"
	FulfillmentStatusFailed    FulfillmentStatus = "failed"
)
