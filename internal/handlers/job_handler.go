package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
)

// JobHandler serves job row listing, inspection, and stats endpoints.
type JobHandler struct {
	jobs   interfaces.JobStorage
	logger arbor.ILogger
}

func NewJobHandler(jobs interfaces.JobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// ListJobsHandler handles GET /api/jobs with optional list_id, stage, and
// status filters.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	page, pageSize := GetPaginationParams(r)
	opts := &interfaces.JobListOptions{
		ListID:   r.URL.Query().Get("list_id"),
		Stage:    r.URL.Query().Get("stage"),
		Status:   r.URL.Query().Get("status"),
		Limit:    pageSize,
		Offset:   page * pageSize,
		OrderBy:  "CreatedAt",
		OrderDir: "desc",
	}

	if opts.Status != "" {
		if _, ok := models.ParseJobStatus(opts.Status); !ok {
			WriteError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	jobs, err := h.jobs.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	total, err := h.jobs.CountJobs(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":       jobs,
		"pagination": NewPagination(page, pageSize, total),
	})
}

// GetJobStatsHandler handles GET /api/jobs/stats
func (h *JobHandler) GetJobStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats := make(map[string]int)
	for _, status := range []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusProcessing,
		models.JobStatusCompleted,
		models.JobStatusFailed,
	} {
		count, err := h.jobs.CountJobsByStatus(r.Context(), status)
		if err != nil {
			h.logger.Error().Err(err).Str("job_status", string(status)).Msg("Failed to count jobs")
			WriteError(w, http.StatusInternalServerError, "Failed to count jobs")
			return
		}
		stats[string(status)] = count
	}

	total, err := h.jobs.CountJobs(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"by_status": stats,
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if isNotFound(err) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// DeleteJobHandler handles DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if err := h.jobs.DeleteJob(r.Context(), jobID); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	WriteSuccess(w, "Job deleted")
}
