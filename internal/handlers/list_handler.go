package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/services/leads"
)

// ListHandler serves lead list CRUD and lead import endpoints.
type ListHandler struct {
	service *leads.Service
	logger  arbor.ILogger
}

func NewListHandler(service *leads.Service, logger arbor.ILogger) *ListHandler {
	return &ListHandler{
		service: service,
		logger:  logger,
	}
}

// ListListsHandler handles GET /api/lists
func (h *ListHandler) ListListsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	page, pageSize := GetPaginationParams(r)
	lists, total, err := h.service.ListLists(r.Context(), pageSize, page*pageSize)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list lead lists")
		WriteError(w, http.StatusInternalServerError, "Failed to list lead lists")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"lists":      lists,
		"pagination": NewPagination(page, pageSize, total),
	})
}

// CreateListHandler handles POST /api/lists
func (h *ListHandler) CreateListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req leads.CreateListRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.service.CreateList(r.Context(), &req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, list)
}

// GetListHandler handles GET /api/lists/{id}
func (h *ListHandler) GetListHandler(w http.ResponseWriter, r *http.Request, listID string) {
	list, err := h.service.GetList(r.Context(), listID)
	if err != nil {
		if isNotFound(err) {
			WriteError(w, http.StatusNotFound, "List not found")
			return
		}
		h.logger.Error().Err(err).Str("list_id", listID).Msg("Failed to get list")
		WriteError(w, http.StatusInternalServerError, "Failed to get list")
		return
	}

	WriteJSON(w, http.StatusOK, list)
}

// UpdateListHandler handles PUT /api/lists/{id}
func (h *ListHandler) UpdateListHandler(w http.ResponseWriter, r *http.Request, listID string) {
	var req leads.UpdateListRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.service.UpdateList(r.Context(), listID, &req)
	if err != nil {
		if isNotFound(err) {
			WriteError(w, http.StatusNotFound, "List not found")
			return
		}
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, list)
}

// DeleteListHandler handles DELETE /api/lists/{id}
func (h *ListHandler) DeleteListHandler(w http.ResponseWriter, r *http.Request, listID string) {
	if err := h.service.DeleteList(r.Context(), listID); err != nil {
		if isNotFound(err) {
			WriteError(w, http.StatusNotFound, "List not found")
			return
		}
		h.logger.Error().Err(err).Str("list_id", listID).Msg("Failed to delete list")
		WriteError(w, http.StatusInternalServerError, "Failed to delete list")
		return
	}

	WriteSuccess(w, "List deleted")
}

// ListLeadsHandler handles GET /api/lists/{id}/leads
func (h *ListHandler) ListLeadsHandler(w http.ResponseWriter, r *http.Request, listID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	page, pageSize := GetPaginationParams(r)
	items, total, err := h.service.ListLeads(r.Context(), listID, pageSize, page*pageSize)
	if err != nil {
		if isNotFound(err) {
			WriteError(w, http.StatusNotFound, "List not found")
			return
		}
		h.logger.Error().Err(err).Str("list_id", listID).Msg("Failed to list leads")
		WriteError(w, http.StatusInternalServerError, "Failed to list leads")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"leads":      items,
		"pagination": NewPagination(page, pageSize, total),
	})
}

// ImportLeadsHandler handles POST /api/lists/{id}/leads
func (h *ListHandler) ImportLeadsHandler(w http.ResponseWriter, r *http.Request, listID string) {
	var req struct {
		Leads []*leads.ImportLeadRequest `json:"leads"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	imported, err := h.service.ImportLeads(r.Context(), listID, req.Leads)
	if err != nil {
		if isNotFound(err) {
			WriteError(w, http.StatusNotFound, "List not found")
			return
		}
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"imported": len(imported),
	})
}
