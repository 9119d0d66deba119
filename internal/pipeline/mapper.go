package pipeline

import (
	"fmt"
	"math"

	"github.com/leadflowhq/leadflow/internal/models"
)

// StageStatus is the presentation status of one stage in the stepper view.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// DerivedStageView is the per-stage presentation state computed from the
// latest job row plus local trigger state. Ephemeral, never persisted.
type DerivedStageView struct {
	Stage       string      `json:"stage"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      StageStatus `json:"status"`
	Available   bool        `json:"available"`
	// ProgressPercent is nil when the job is absent or total is zero; the
	// UI hides the progress bar rather than showing 0 or NaN.
	ProgressPercent *int   `json:"progress_percent,omitempty"`
	StatsText       string `json:"stats_text,omitempty"`
	Error           string `json:"error,omitempty"`
	JobID           string `json:"job_id,omitempty"`
}

// MapStatus derives the presentation state for one stage from its latest job
// row and the local in-flight trigger flag. Pure function.
//
// While a trigger is in flight and no job row reflects it yet, the stage is
// shown in progress regardless of the last known job, so the button never
// appears inert during round-trip latency.
func MapStatus(job *models.PipelineJob, isTriggering bool) DerivedStageView {
	view := DerivedStageView{Status: StagePending}

	if job != nil {
		view.JobID = job.ID
		view.Status = presentationStatus(job.Status)
		view.ProgressPercent = progressPercent(job)
		view.StatsText = statsText(job)
		view.Error = job.Error
	}

	// The caller clears the trigger flag once the row it created has moved
	// on, so an unconditional override here cannot mask a finished run.
	if isTriggering {
		view.Status = StageInProgress
	}

	return view
}

func presentationStatus(status models.JobStatus) StageStatus {
	switch status {
	case models.JobStatusProcessing:
		return StageInProgress
	case models.JobStatusCompleted:
		return StageCompleted
	case models.JobStatusFailed:
		return StageFailed
	default:
		return StagePending
	}
}

// progressPercent returns (processed+failed)/total as a rounded percentage
// clamped to [0, 100], or nil when total is zero or unknown.
func progressPercent(job *models.PipelineJob) *int {
	if job.TotalLeads <= 0 {
		return nil
	}
	percent := int(math.Round(float64(job.ProcessedLeads+job.FailedLeads) / float64(job.TotalLeads) * 100))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return &percent
}

func statsText(job *models.PipelineJob) string {
	switch job.Status {
	case models.JobStatusProcessing:
		return fmt.Sprintf("%d/%d processed", job.ProcessedLeads, job.TotalLeads)
	case models.JobStatusCompleted, models.JobStatusFailed:
		return fmt.Sprintf("%d processed, %d failed", job.ProcessedLeads, job.FailedLeads)
	default:
		return ""
	}
}
