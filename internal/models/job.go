// -----------------------------------------------------------------------
// Pipeline Job - one execution attempt of one stage for one lead list
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the closed status vocabulary for pipeline jobs. Raw status
// strings reported by the remote stage functions are normalized into this
// enum at the ingest boundary; nothing downstream matches on raw strings.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus normalizes a raw status string into the closed enum.
// "running" is accepted as a synonym for processing (older stage functions
// report it). Returns false for anything outside the vocabulary.
func ParseJobStatus(raw string) (JobStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return JobStatusPending, true
	case "processing", "running":
		return JobStatusProcessing, true
	case "completed":
		return JobStatusCompleted, true
	case "failed":
		return JobStatusFailed, true
	default:
		return "", false
	}
}

// IsTerminal returns true for completed and failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// PipelineJob is a persisted record of one execution attempt of one stage
// for one lead list. Re-running a stage creates a new row; a row never
// transitions backward, and terminal rows are never mutated again.
//
// Invariant: ProcessedLeads + FailedLeads <= TotalLeads once TotalLeads is
// known. A completed job with FailedLeads > 0 is a valid terminal outcome
// (partial-failure success), not an error state.
type PipelineJob struct {
	ID     string    `json:"id" badgerhold:"key"`
	ListID string    `json:"list_id" badgerhold:"index"`
	Stage  string    `json:"stage"`
	Status JobStatus `json:"status"`

	TotalLeads     int `json:"total_leads"`
	ProcessedLeads int `json:"processed_leads"`
	FailedLeads    int `json:"failed_leads"`

	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewPipelineJob creates a new pending job row for a (list, stage) pair.
func NewPipelineJob(listID, stage string) *PipelineJob {
	now := time.Now()
	return &PipelineJob{
		ID:        uuid.New().String(),
		ListID:    listID,
		Stage:     stage,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkStarted transitions the job to processing and records the start time.
func (j *PipelineJob) MarkStarted(total int) {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.TotalLeads = total
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted transitions the job to completed with final counts.
func (j *PipelineJob) MarkCompleted(processed, failed int) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.ProcessedLeads = processed
	j.FailedLeads = failed
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed transitions the job to failed with an error message.
func (j *PipelineJob) MarkFailed(errorMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = errorMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// IsTerminal returns true if the job reached a terminal state.
func (j *PipelineJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Validate checks structural validity before persistence.
func (j *PipelineJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.ListID == "" {
		return fmt.Errorf("job list ID is required")
	}
	if _, ok := StageByKey(j.Stage); !ok {
		return fmt.Errorf("unknown stage: %s", j.Stage)
	}
	if _, ok := ParseJobStatus(string(j.Status)); !ok {
		return fmt.Errorf("invalid status: %s", j.Status)
	}
	if j.TotalLeads < 0 || j.ProcessedLeads < 0 || j.FailedLeads < 0 {
		return fmt.Errorf("lead counts cannot be negative")
	}
	if j.TotalLeads > 0 && j.ProcessedLeads+j.FailedLeads > j.TotalLeads {
		return fmt.Errorf("processed (%d) + failed (%d) exceeds total (%d)",
			j.ProcessedLeads, j.FailedLeads, j.TotalLeads)
	}
	return nil
}
