// Package pipeline tracks the multi-stage lead-processing pipeline for a
// lead list: per-stage derived status, trigger gating, and the poll-based
// watcher reconciling out-of-band job updates into view snapshots.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
	"github.com/leadflowhq/leadflow/internal/services/invoker"
)

var (
	// ErrStageUnavailable is returned when a stage's predecessor has never
	// completed, or when the first stage is triggered on an empty list.
	ErrStageUnavailable = errors.New("stage is not available")

	// ErrStageBusy is returned when a run for the stage is already in
	// flight, either locally (trigger pending) or remotely (job processing).
	ErrStageBusy = errors.New("stage already has a run in flight")
)

// RejectedError is returned when the remote function acknowledges the
// invocation with success=false before any processing starts. The stage's
// state is unchanged; only the message is surfaced.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("stage invocation rejected: %s", e.Message)
}

// StageInvoker invokes a remote stage-execution function.
type StageInvoker interface {
	Invoke(ctx context.Context, stage, listID, jobID string) (*invoker.Ack, error)
}

// View is the full stepper view for one lead list.
type View struct {
	ListID    string             `json:"list_id"`
	LeadCount int                `json:"lead_count"`
	Stages    []DerivedStageView `json:"stages"`
}

// Settled reports whether no stage is in progress, locally or remotely.
// The watcher stops polling once the view settles.
func (v *View) Settled() bool {
	for _, stage := range v.Stages {
		if stage.Status == StageInProgress {
			return false
		}
	}
	return true
}

// Service owns stage triggering and the derived pipeline view. In-flight
// trigger flags are local per (list, stage) and cleared once the backing
// job row leaves pending; job rows themselves are the source of truth.
type Service struct {
	jobs    interfaces.JobStorage
	lists   interfaces.ListStorage
	invoker StageInvoker
	events  interfaces.EventService
	logger  arbor.ILogger

	mu       sync.Mutex
	inflight map[string]string // listID|stage -> job ID created by the trigger
}

// NewService creates a pipeline service.
func NewService(jobs interfaces.JobStorage, lists interfaces.ListStorage, inv StageInvoker, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		jobs:     jobs,
		lists:    lists,
		invoker:  inv,
		events:   events,
		logger:   logger,
		inflight: make(map[string]string),
	}
}

func inflightKey(listID, stage string) string {
	return listID + "|" + stage
}

// TriggerStage starts one execution attempt of a stage for a list. It
// creates the pending job row, invokes the remote function with the job ID,
// and returns the new job. Re-running a completed stage goes through the
// same path and produces a new row.
//
// On invocation rejection or transport failure the just-created row is
// removed so the stage's prior state is untouched.
func (s *Service) TriggerStage(ctx context.Context, listID, stage string) (*models.PipelineJob, error) {
	def, ok := models.StageByKey(stage)
	if !ok {
		return nil, fmt.Errorf("unknown stage: %s", stage)
	}

	list, err := s.lists.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}

	if err := s.checkGate(ctx, list, def); err != nil {
		return nil, err
	}

	if err := s.reserveStage(ctx, listID, stage); err != nil {
		return nil, err
	}

	latest, err := s.jobs.LatestJob(ctx, listID, stage)
	if err != nil {
		s.releaseStage(listID, stage, "")
		return nil, fmt.Errorf("failed to read latest job: %w", err)
	}
	if latest != nil && latest.Status == models.JobStatusProcessing {
		s.releaseStage(listID, stage, "")
		return nil, ErrStageBusy
	}

	job := models.NewPipelineJob(listID, stage)
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		s.releaseStage(listID, stage, "")
		return nil, fmt.Errorf("failed to create job row: %w", err)
	}

	s.mu.Lock()
	s.inflight[inflightKey(listID, stage)] = job.ID
	s.mu.Unlock()

	ack, err := s.invoker.Invoke(ctx, stage, listID, job.ID)
	if err != nil || !ack.Success {
		s.releaseStage(listID, stage, job.ID)
		if delErr := s.jobs.DeleteJob(ctx, job.ID); delErr != nil {
			s.logger.Warn().Err(delErr).Str("job_id", job.ID).Msg("Failed to remove job row after rejected invocation")
		}
		if err != nil {
			return nil, fmt.Errorf("stage invocation failed: %w", err)
		}
		return nil, &RejectedError{Message: ack.Message}
	}

	s.logger.Info().
		Str("list_id", listID).
		Str("stage", stage).
		Str("job_id", job.ID).
		Msg("Stage triggered")

	s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventJobCreated, Payload: job})

	return job, nil
}

// checkGate enforces the trigger preconditions: the first stage needs leads
// in the list, every other stage needs a completed run of its predecessor.
func (s *Service) checkGate(ctx context.Context, list *models.LeadList, def models.StageDefinition) error {
	if def.Predecessor == "" {
		if list.LeadCount == 0 {
			return fmt.Errorf("%w: list has no leads", ErrStageUnavailable)
		}
		return nil
	}

	completed, err := s.hasCompletedRun(ctx, list.ID, def.Predecessor)
	if err != nil {
		return err
	}
	if !completed {
		return fmt.Errorf("%w: %s has not completed", ErrStageUnavailable, def.Predecessor)
	}
	return nil
}

// hasCompletedRun reports whether the stage has ever completed for the list.
// Gating intentionally looks at the whole history, not just the latest row:
// re-running an earlier stage must not revoke access to its successor.
func (s *Service) hasCompletedRun(ctx context.Context, listID, stage string) (bool, error) {
	jobs, err := s.jobs.ListJobs(ctx, &interfaces.JobListOptions{
		ListID: listID,
		Stage:  stage,
		Status: string(models.JobStatusCompleted),
		Limit:  1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check completed runs: %w", err)
	}
	return len(jobs) > 0, nil
}

// View composes the stepper view for a list: for each stage in order, the
// latest job row mapped through MapStatus plus availability gating.
func (s *Service) View(ctx context.Context, listID string) (*View, error) {
	list, err := s.lists.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}

	view := &View{
		ListID:    listID,
		LeadCount: list.LeadCount,
	}

	for _, def := range models.Stages() {
		latest, err := s.jobs.LatestJob(ctx, listID, def.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read latest job for %s: %w", def.Key, err)
		}

		triggering := s.observeInflight(listID, def.Key, latest)

		stageView := MapStatus(latest, triggering)
		stageView.Stage = def.Key
		stageView.Title = def.Title
		stageView.Description = def.Description

		if def.Predecessor == "" {
			stageView.Available = list.LeadCount > 0
		} else {
			completed, err := s.hasCompletedRun(ctx, listID, def.Predecessor)
			if err != nil {
				return nil, err
			}
			stageView.Available = completed
		}

		view.Stages = append(view.Stages, stageView)
	}

	return view, nil
}

// observeInflight reconciles the local in-flight flag against the latest
// job row and reports whether the trigger is still considered in flight.
// The flag clears once the row it created has moved past pending, or once
// a newer row exists.
func (s *Service) observeInflight(listID, stage string, latest *models.PipelineJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, ok := s.inflight[inflightKey(listID, stage)]
	if !ok {
		return false
	}

	if jobID == "" {
		// Slot reserved by a trigger that has not bound its row yet.
		return true
	}
	if latest == nil {
		// Row not visible yet; keep the optimistic state.
		return true
	}
	if latest.ID == jobID && latest.Status == models.JobStatusPending {
		return true
	}

	delete(s.inflight, inflightKey(listID, stage))
	return false
}

// reserveStage claims the (list, stage) trigger slot, making the busy check
// and the reservation one atomic step so two concurrent triggers cannot
// both pass. An existing claim is honored only while its job row is still
// pending; a claim whose row finished without a view read reconciling the
// flag (a swept stale job, typically) is reclaimed rather than blocking the
// stage until restart.
func (s *Service) reserveStage(ctx context.Context, listID, stage string) error {
	key := inflightKey(listID, stage)

	s.mu.Lock()
	jobID, busy := s.inflight[key]
	if !busy {
		s.inflight[key] = ""
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if jobID == "" {
		// Another trigger holds the slot and has not bound its row yet.
		return ErrStageBusy
	}

	row, err := s.jobs.GetJob(ctx, jobID)
	if err == nil && row.Status == models.JobStatusPending {
		return ErrStageBusy
	}

	// The claimed row left pending or vanished. Take the slot over, unless
	// a newer trigger got there first.
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.inflight[key]; ok && current != jobID {
		return ErrStageBusy
	}
	s.inflight[key] = ""
	return nil
}

// releaseStage drops the trigger slot if it still holds the given value, so
// a trigger unwinding an error cannot release a slot a newer trigger has
// since claimed.
func (s *Service) releaseStage(listID, stage, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inflightKey(listID, stage)
	if current, ok := s.inflight[key]; ok && current == jobID {
		delete(s.inflight, key)
	}
}
