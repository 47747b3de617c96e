package enums

import "slices"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateTransaction  OutboxAggregateType = "transaction"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{AggregateTransaction, AggregateNotification}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(validAggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", validAggregateTypes, value)
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventTransactionCompleted OutboxEventType = "transaction_completed"
	EventTransactionRefunded  OutboxEventType = "transaction_refunded"
	EventNotificationCreated  OutboxEventType = "notification_created"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTransactionCompleted,
	EventTransactionRefunded,
	EventNotificationCreated,
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(validOutboxEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", validOutboxEventTypes, value)
}

// OutboxDLQErrorReason records why an event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
