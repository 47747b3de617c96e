package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

const defaultRetention = 30 * 24 * time.Hour

type notificationPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewNotificationRetentionJob deletes inbox entries older than retention.
func NewNotificationRetentionJob(repo notificationPurger, retention time.Duration, logg *logger.Logger) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newRetentionJob("notification-retention", retention, logg, repo.DeleteOlderThan)
}

// NewOutboxRetentionJob deletes published outbox rows older than retention.
func NewOutboxRetentionJob(repo outboxPurger, retention time.Duration, logg *logger.Logger) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob("outbox-retention", retention, logg, repo.DeletePublishedBefore)
}

type retentionJob struct {
	name      string
	retention time.Duration
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
	logg      *logger.Logger
	now       func() time.Time
}

func newRetentionJob(name string, retention time.Duration, logg *logger.Logger, purge func(context.Context, time.Time) (int64, error)) (*retentionJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &retentionJob{name: name, retention: retention, purge: purge, logg: logg, now: time.Now}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}
