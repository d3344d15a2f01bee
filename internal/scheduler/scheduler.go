// Package scheduler drains scheduled dispatches once their send time
// arrives. Dispatch records scheduling; this loop is what executes it.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agri-price-notify/internal/dispatch"
	"agri-price-notify/internal/storage"
)

// Executor runs a stored dispatch to a terminal status.
type Executor interface {
	ExecuteStored(ctx context.Context, rec storage.DispatchRecord) (dispatch.Result, error)
}

// Queue lists dispatches whose schedule time has passed.
type Queue interface {
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]storage.DispatchRecord, error)
}

// Options tune drain behaviour.
type Options struct {
	Interval     time.Duration
	BatchSize    int
	StartupDelay time.Duration
}

// Scheduler periodically drains due dispatches.
type Scheduler struct {
	queue    Queue
	executor Executor
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs a Scheduler instance.
func New(queue Queue, executor Executor, opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Scheduler{
		queue:    queue,
		executor: executor,
		opts:     opts,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// Run blocks, draining due dispatches every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if err := s.DrainDue(ctx); err != nil {
			s.logger.Error().Err(err).Msg("drain cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DrainDue executes every dispatch whose schedule time has passed. One
// failing dispatch never blocks the rest of the batch.
func (s *Scheduler) DrainDue(ctx context.Context) error {
	due, err := s.queue.ListDueScheduled(ctx, s.now().UTC(), s.opts.BatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info().Int("count", len(due)).Msg("draining due dispatches")
	for _, rec := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, execErr := s.executor.ExecuteStored(ctx, rec)
		if execErr != nil {
			s.logger.Error().Err(execErr).Int64("dispatch_id", rec.ID).Msg("scheduled dispatch failed to execute")
			continue
		}
		s.logger.Info().Int64("dispatch_id", rec.ID).
			Str("status", string(result.Status)).
			Int("sent", result.Sent).Int("failed", result.Failed).
			Msg("scheduled dispatch executed")
	}
	return nil
}
