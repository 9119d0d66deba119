// Package sweeper fails abandoned pipeline jobs. A job whose reporter
// stopped calling the ingest API — mid-run in processing, or still pending
// because the function acked the trigger and then died — would otherwise
// block its stage forever; the sweeper marks such rows failed on a cron
// schedule.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/interfaces"
)

// Service runs the stale-job sweep on a cron schedule.
type Service struct {
	jobs       interfaces.JobStorage
	events     interfaces.EventService
	logger     arbor.ILogger
	schedule   string
	staleAfter time.Duration
	cron       *cron.Cron
}

// NewService creates a sweeper. schedule is a standard 5-field cron spec;
// staleAfter is how long a non-terminal job may go without an update before
// it is considered abandoned.
func NewService(jobs interfaces.JobStorage, events interfaces.EventService, logger arbor.ILogger, schedule string, staleAfter time.Duration) *Service {
	return &Service{
		jobs:       jobs,
		events:     events,
		logger:     logger,
		schedule:   schedule,
		staleAfter: staleAfter,
	}
}

// Start schedules the sweep.
func (s *Service) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Stale job sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.schedule).
		Str("stale_after", s.staleAfter.String()).
		Msg("Stale job sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

// Sweep fails every pending or processing job whose last update is older
// than the stale threshold. Each failed row is published as a job-failed
// event so open views refresh.
func (s *Service) Sweep(ctx context.Context) error {
	stale, err := s.jobs.GetStaleJobs(ctx, s.staleAfter)
	if err != nil {
		return fmt.Errorf("failed to query stale jobs: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	for _, job := range stale {
		job.MarkFailed(fmt.Sprintf("no status update for %s, marked stale", s.staleAfter))
		if err := s.jobs.SaveJob(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark stale job")
			continue
		}

		s.logger.Warn().
			Str("job_id", job.ID).
			Str("list_id", job.ListID).
			Str("stage", job.Stage).
			Msg("Stale job marked failed")

		s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventJobFailed, Payload: job})
	}

	return nil
}
