package server

import (
	"net/http"
	"strings"

	"github.com/leadflowhq/leadflow/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Lead lists
	mux.HandleFunc("/api/lists", s.handleListsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/lists/", s.handleListRoutes) // /{id} and subpaths

	// API routes - Jobs
	mux.HandleFunc("/api/jobs/stats", s.app.JobHandler.GetJobStatsHandler)
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // /{id}

	// API routes - Status ingest (called by the remote stage functions)
	mux.HandleFunc("/api/ingest/jobs/", s.handleIngestRoutes) // POST /{id}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleListsRoute dispatches the /api/lists collection endpoint by method
func (s *Server) handleListsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.ListHandler.ListListsHandler(w, r)
	case "POST":
		s.app.ListHandler.CreateListHandler(w, r)
	default:
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleListRoutes routes /api/lists/{id} and its subresources
func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/lists/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	if len(parts) == 0 || parts[0] == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	listID := parts[0]

	// /api/lists/{id}
	if len(parts) == 1 {
		switch r.Method {
		case "GET":
			s.app.ListHandler.GetListHandler(w, r, listID)
		case "PUT":
			s.app.ListHandler.UpdateListHandler(w, r, listID)
		case "DELETE":
			s.app.ListHandler.DeleteListHandler(w, r, listID)
		default:
			handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	switch parts[1] {
	case "leads":
		// GET/POST /api/lists/{id}/leads
		if len(parts) != 2 {
			break
		}
		switch r.Method {
		case "GET":
			s.app.ListHandler.ListLeadsHandler(w, r, listID)
		case "POST":
			s.app.ListHandler.ImportLeadsHandler(w, r, listID)
		default:
			handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return

	case "pipeline":
		// GET /api/lists/{id}/pipeline
		if len(parts) == 2 {
			s.app.PipelineHandler.GetPipelineHandler(w, r, listID)
			return
		}
		// POST /api/lists/{id}/pipeline/{stage}/trigger
		if len(parts) == 4 && parts[3] == "trigger" {
			s.app.PipelineHandler.TriggerStageHandler(w, r, listID, parts[2])
			return
		}
	}

	s.app.APIHandler.NotFoundHandler(w, r)
}

// handleJobRoutes routes /api/jobs/{id}
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	switch r.Method {
	case "GET":
		s.app.JobHandler.GetJobHandler(w, r, jobID)
	case "DELETE":
		s.app.JobHandler.DeleteJobHandler(w, r, jobID)
	default:
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleIngestRoutes routes POST /api/ingest/jobs/{id}
func (s *Server) handleIngestRoutes(w http.ResponseWriter, r *http.Request) {
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/ingest/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	s.app.IngestHandler.ReportStatusHandler(w, r, jobID)
}
