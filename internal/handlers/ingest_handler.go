package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
	"github.com/leadflowhq/leadflow/internal/pipeline"
)

// IngestRequest is the status report posted by a remote stage function.
// Status accepts the raw vocabulary including the legacy "running" synonym;
// it is normalized before anything else looks at it.
type IngestRequest struct {
	Status         string `json:"status" validate:"required"`
	TotalLeads     int    `json:"total_leads" validate:"gte=0"`
	ProcessedLeads int    `json:"processed_leads" validate:"gte=0"`
	FailedLeads    int    `json:"failed_leads" validate:"gte=0"`
	Error          string `json:"error" validate:"max=4000"`
}

// IngestHandler receives out-of-band job status reports from the remote
// stage functions. Transitions are forward-only: a terminal row is never
// mutated again, and a row never moves backward in the lifecycle.
type IngestHandler struct {
	jobs     interfaces.JobStorage
	events   interfaces.EventService
	watcher  *pipeline.Watcher
	logger   arbor.ILogger
	validate *validator.Validate
}

func NewIngestHandler(jobs interfaces.JobStorage, events interfaces.EventService, watcher *pipeline.Watcher, logger arbor.ILogger) *IngestHandler {
	return &IngestHandler{
		jobs:     jobs,
		events:   events,
		watcher:  watcher,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// statusRank orders the job lifecycle for the forward-only check. Both
// terminal states share a rank; a terminal row rejects every update.
func statusRank(s models.JobStatus) int {
	switch s {
	case models.JobStatusPending:
		return 0
	case models.JobStatusProcessing:
		return 1
	default:
		return 2
	}
}

// ReportStatusHandler handles POST /api/ingest/jobs/{id}
func (h *IngestHandler) ReportStatusHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req IngestRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid status report: "+err.Error())
		return
	}

	status, ok := models.ParseJobStatus(req.Status)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Unknown status: "+req.Status)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if isNotFound(err) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job for ingest")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	if job.IsTerminal() {
		WriteError(w, http.StatusConflict, "Job already finished")
		return
	}
	if statusRank(status) < statusRank(job.Status) {
		WriteError(w, http.StatusConflict, "Status transition goes backward")
		return
	}

	eventType := h.applyReport(job, status, &req)

	if err := h.jobs.SaveJob(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to save ingested status")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("list_id", job.ListID).
		Str("stage", job.Stage).
		Str("job_status", string(job.Status)).
		Int("processed", job.ProcessedLeads).
		Int("failed", job.FailedLeads).
		Msg("Job status ingested")

	h.events.Publish(r.Context(), interfaces.Event{Type: eventType, Payload: job})
	h.watcher.Watch(job.ListID)

	WriteJSON(w, http.StatusOK, job)
}

// applyReport mutates the job per the normalized report and returns the
// event type to publish.
func (h *IngestHandler) applyReport(job *models.PipelineJob, status models.JobStatus, req *IngestRequest) interfaces.EventType {
	switch status {
	case models.JobStatusProcessing:
		if job.Status == models.JobStatusPending {
			job.MarkStarted(req.TotalLeads)
		}
		if req.TotalLeads > 0 {
			job.TotalLeads = req.TotalLeads
		}
		job.ProcessedLeads = req.ProcessedLeads
		job.FailedLeads = req.FailedLeads
		job.UpdatedAt = time.Now()
		return interfaces.EventJobUpdated

	case models.JobStatusCompleted:
		if req.TotalLeads > 0 {
			job.TotalLeads = req.TotalLeads
		}
		job.MarkCompleted(req.ProcessedLeads, req.FailedLeads)
		return interfaces.EventJobCompleted

	case models.JobStatusFailed:
		if req.TotalLeads > 0 {
			job.TotalLeads = req.TotalLeads
		}
		job.ProcessedLeads = req.ProcessedLeads
		job.FailedLeads = req.FailedLeads
		job.MarkFailed(req.Error)
		return interfaces.EventJobFailed

	default:
		// Redundant pending report; only the timestamp moves.
		job.UpdatedAt = time.Now()
		return interfaces.EventJobUpdated
	}
}
