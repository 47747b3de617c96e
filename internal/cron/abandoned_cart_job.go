package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/digistore-backend/internal/abandoned"
)

type cartSweeper interface {
	Sweep(ctx context.Context) (*abandoned.SweepResult, error)
}

// NewAbandonedCartJob runs the reminder sweep on the cron cadence.
func NewAbandonedCartJob(sweeper cartSweeper) (Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("cart sweeper required")
	}
	return &abandonedCartJob{sweeper: sweeper}, nil
}

type abandonedCartJob struct {
	sweeper cartSweeper
}

func (j *abandonedCartJob) Name() string { return "abandoned-cart-sweep" }

func (j *abandonedCartJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("abandoned cart sweep: %w", err)
	}
	if result != nil && result.Failed > 0 && result.Emailed == 0 {
		return fmt.Errorf("abandoned cart sweep: all %d reminder sends failed", result.Failed)
	}
	return nil
}
