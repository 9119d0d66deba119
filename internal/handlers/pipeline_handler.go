package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/models"
	"github.com/leadflowhq/leadflow/internal/pipeline"
)

// PipelineHandler serves the pipeline stepper view and stage triggers.
type PipelineHandler struct {
	service *pipeline.Service
	watcher *pipeline.Watcher
	logger  arbor.ILogger
}

func NewPipelineHandler(service *pipeline.Service, watcher *pipeline.Watcher, logger arbor.ILogger) *PipelineHandler {
	return &PipelineHandler{
		service: service,
		watcher: watcher,
		logger:  logger,
	}
}

// GetPipelineHandler handles GET /api/lists/{id}/pipeline
func (h *PipelineHandler) GetPipelineHandler(w http.ResponseWriter, r *http.Request, listID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	view, err := h.service.View(r.Context(), listID)
	if err != nil {
		if isNotFound(err) {
			WriteError(w, http.StatusNotFound, "List not found")
			return
		}
		h.logger.Error().Err(err).Str("list_id", listID).Msg("Failed to build pipeline view")
		WriteError(w, http.StatusInternalServerError, "Failed to build pipeline view")
		return
	}

	// Keep polling while anything is in flight so WebSocket clients get
	// change events without re-requesting the view.
	if !view.Settled() {
		h.watcher.Watch(listID)
	}

	WriteJSON(w, http.StatusOK, view)
}

// TriggerStageHandler handles POST /api/lists/{id}/pipeline/{stage}/trigger
func (h *PipelineHandler) TriggerStageHandler(w http.ResponseWriter, r *http.Request, listID, stage string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if _, ok := models.StageByKey(stage); !ok {
		WriteError(w, http.StatusNotFound, "Unknown stage")
		return
	}

	job, err := h.service.TriggerStage(r.Context(), listID, stage)
	if err != nil {
		var rejected *pipeline.RejectedError
		switch {
		case isNotFound(err):
			WriteError(w, http.StatusNotFound, "List not found")
		case errors.Is(err, pipeline.ErrStageUnavailable):
			WriteError(w, http.StatusConflict, err.Error())
		case errors.Is(err, pipeline.ErrStageBusy):
			WriteError(w, http.StatusConflict, err.Error())
		case errors.As(err, &rejected):
			WriteError(w, http.StatusUnprocessableEntity, rejected.Message)
		default:
			h.logger.Error().Err(err).
				Str("list_id", listID).
				Str("stage", stage).
				Msg("Stage trigger failed")
			WriteError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	h.watcher.Watch(listID)

	WriteJSON(w, http.StatusAccepted, job)
}
