package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "digistore"

// Outcome labels shared by the storefront counters.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
)

// StoreMetrics counts checkout, webhook, fulfillment and recovery-mail outcomes.
type StoreMetrics struct {
	checkoutSessions *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	fulfillments     *prometheus.CounterVec
	recoveryEmails   *prometheus.CounterVec
}

// NewStoreMetrics registers the storefront counters. A nil registerer yields no-op metrics.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		return &StoreMetrics{}
	}
	m := &StoreMetrics{
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Hosted checkout sessions requested, by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_events_total",
			Help:      "Payment provider webhook events, by type and outcome.",
		}, []string{"type", "outcome"}),
		fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillments_total",
			Help:      "Per-product fulfillment attempts, by product type and outcome.",
		}, []string{"product_type", "outcome"}),
		recoveryEmails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abandoned_cart_emails_total",
			Help:      "Abandoned-cart e-mails, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.checkoutSessions, m.webhookEvents, m.fulfillments, m.recoveryEmails)
	return m
}

func (m *StoreMetrics) CheckoutSession(outcome string) {
	if m == nil || m.checkoutSessions == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *StoreMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *StoreMetrics) Fulfillment(productType, outcome string) {
	if m == nil || m.fulfillments == nil {
		return
	}
	m.fulfillments.WithLabelValues(normalizeLabel(productType), normalizeLabel(outcome)).Inc()
}

func (m *StoreMetrics) RecoveryEmail(outcome string) {
	if m == nil || m.recoveryEmails == nil {
		return
	}
	m.recoveryEmails.WithLabelValues(normalizeLabel(outcome)).Inc()
}
