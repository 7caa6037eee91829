package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobRetention periodically removes expired jobs from the registry.
type JobRetention struct {
	store    JobStore
	ttl      time.Duration
	schedule string
	cron     *cron.Cron
	logger   zerolog.Logger
	now      func() time.Time
}

// NewJobRetention prepares the sweeper; call Start to schedule it.
func NewJobRetention(store JobStore, ttl time.Duration, schedule string, logger zerolog.Logger) *JobRetention {
	if schedule == "" {
		schedule = "@every 1h"
	}
	return &JobRetention{
		store:    store,
		ttl:      ttl,
		schedule: schedule,
		logger:   logger.With().Str("component", "job_retention").Logger(),
		now:      time.Now,
	}
}

// Start registers the sweep on the cron schedule.
func (r *JobRetention) Start() error {
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("job sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule job sweep %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.logger.Info().Str("schedule", r.schedule).Dur("ttl", r.ttl).Msg("job retention started")
	return nil
}

// RunOnce sweeps jobs older than the TTL.
func (r *JobRetention) RunOnce(ctx context.Context) (int, error) {
	removed, err := r.store.Sweep(ctx, r.now().UTC().Add(-r.ttl))
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("expired jobs swept")
	}
	return removed, nil
}

// Stop halts the schedule and waits for a running sweep.
func (r *JobRetention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
