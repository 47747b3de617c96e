package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsRecordsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	now := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)

	m.JobRun("abandoned-cart-sweep", 250*time.Millisecond, nil, now)
	m.JobRun("abandoned-cart-sweep", time.Second, errors.New("smtp down"), now.Add(time.Hour))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, outcome := range []string{OutcomeSuccess, OutcomeFailure} {
		s, err := sample(mfs, "digistore_cron_job_runs_total", map[string]string{"job": "abandoned-cart-sweep", "outcome": outcome})
		if err != nil {
			t.Fatal(err)
		}
		if got := s.GetCounter().GetValue(); got != 1 {
			t.Fatalf("%s runs: expected 1, got %f", outcome, got)
		}
	}

	hist, err := sample(mfs, "digistore_cron_job_duration_seconds", map[string]string{"job": "abandoned-cart-sweep"})
	if err != nil {
		t.Fatal(err)
	}
	if got := hist.GetHistogram().GetSampleSum(); got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f", got)
	}

	last, err := sample(mfs, "digistore_cron_job_last_success_timestamp_seconds", map[string]string{"job": "abandoned-cart-sweep"})
	if err != nil {
		t.Fatal(err)
	}
	if got := last.GetGauge().GetValue(); got != float64(now.Unix()) {
		t.Fatalf("failed run must not move last success, got %f", got)
	}
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Event("transaction_completed", OutboxPublished)
	m.Event("transaction_completed", OutboxPublished)
	m.Event("", OutboxDeadLetter)
	m.Batch(40 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	s, err := sample(mfs, "digistore_outbox_events_total", map[string]string{"event_type": "transaction_completed", "outcome": OutboxPublished})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 published, got %f", got)
	}
	if _, err := sample(mfs, "digistore_outbox_events_total", map[string]string{"event_type": "unknown", "outcome": OutboxDeadLetter}); err != nil {
		t.Fatal(err)
	}
}

func TestMetricsNilRegisterer(t *testing.T) {
	NewCronJobMetrics(nil).JobRun("x", time.Second, nil, time.Now())
	NewOutboxMetrics(nil).Event("x", OutboxRetry)
	var m *OutboxMetrics
	m.Batch(time.Second)
}
