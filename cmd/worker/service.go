package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

var errConsumerExited = errors.New("consumer exited")

// Consumer is a long-running subscription loop.
type Consumer interface {
	Run(ctx context.Context) error
}

type pinger func(context.Context) error

type ServiceParams struct {
	Logger    *logger.Logger
	Consumers map[string]Consumer
	Readiness map[string]pinger
}

// Service runs the email relay and the sales analytics sink side by side.
// The first consumer to fail stops the rest.
type Service struct {
	logg      *logger.Logger
	consumers map[string]Consumer
	readiness map[string]pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %s is nil", name)
		}
	}
	return &Service{
		logg:      params.Logger,
		consumers: params.Consumers,
		readiness: params.Readiness,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, fn := range s.readiness {
		if err := pingDependency(ctx, s.logg, name, fn); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn pinger) error {
	if fn == nil {
		return nil
	}
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	// Any consumer returning, for whatever reason, stops its siblings.
	group, groupCtx := errgroup.WithContext(ctx)
	for name, c := range s.consumers {
		group.Go(func() error {
			err := c.Run(groupCtx)
			if err == nil || errors.Is(err, context.Canceled) {
				return errConsumerExited
			}
			s.logg.Error(withConsumer(ctx, s.logg, name), "consumer stopped unexpectedly", err)
			return fmt.Errorf("consumer %s: %w", name, err)
		})
	}
	if err := group.Wait(); !errors.Is(err, errConsumerExited) {
		return err
	}
	return ctx.Err()
}

func withConsumer(ctx context.Context, l *logger.Logger, consumer string) context.Context {
	return l.WithFields(ctx, map[string]any{"consumer": consumer})
}
