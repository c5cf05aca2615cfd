// Package server exposes the engine as a JSON API for the portal UI.
// Handlers are thin: decode, call the engine, encode. Validation errors map
// to 4xx, everything else to 500; persistence failures below the engine
// never reach here by design.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/promodesk/slovolov/internal/database"
	"github.com/promodesk/slovolov/internal/engine"
	"github.com/promodesk/slovolov/internal/logging"
	"github.com/promodesk/slovolov/internal/pipeline"
	"github.com/promodesk/slovolov/internal/reconcile"
	"github.com/promodesk/slovolov/internal/registry"
)

// Server is the HTTP front of the engine.
type Server struct {
	eng    *engine.Engine
	log    *logging.Logger
	router chi.Router
}

// New creates a Server with its routes mounted.
func New(eng *engine.Engine, log *logging.Logger) *Server {
	s := &Server{eng: eng, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/results/{subclusterID}", s.handleResults)

		r.Get("/filters", s.handleListFilters)
		r.Post("/filters", s.handleCreateFilter)
		r.Get("/filters/{id}", s.handleGetFilter)
		r.Put("/filters/{id}/items", s.handleSetFilterItems)
		r.Post("/filters/{id}/rename", s.handleRenameFilter)
		r.Post("/filters/{id}/words", s.handleAddMinusWord)
		r.Delete("/filters/{id}", s.handleDeleteFilter)

		r.Get("/configs/{subclusterID}", s.handleGetConfig)
		r.Patch("/configs/{subclusterID}", s.handleUpdateConfig)
		r.Post("/configs/{subclusterID}/filters/{filterID}/toggle", s.handleToggleFilter)
		r.Post("/configs/{subclusterID}/models/{modelID}", s.handleBindModel)
		r.Delete("/configs/{subclusterID}/models/{modelID}", s.handleUnbindModel)

		r.Post("/sync/{modelID}", s.handleSync)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve starts the server on the given port.
func (s *Server) Serve(port int) error {
	s.log.Info("server listening", "port", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.router)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	subclusterID := chi.URLParam(r, "subclusterID")

	category, ok := pipeline.ParseCategory(r.URL.Query().Get("category"))
	if !ok {
		s.clientError(w, http.StatusBadRequest, "unknown category")
		return
	}

	result, err := s.eng.GetFilteredResult(subclusterID, engine.ViewOptions{
		SearchText: r.URL.Query().Get("search"),
		Category:   category,
	})
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := s.eng.ListFilters()
	if err != nil {
		s.serverError(w, err)
		return
	}
	if filters == nil {
		filters = []engine.FilterSummary{}
	}
	s.writeJSON(w, http.StatusOK, filters)
}

func (s *Server) handleCreateFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	f, err := s.eng.CreateFilter(req.Name)
	if err != nil {
		s.filterError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, filterResponse(f))
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	f, err := s.eng.GetFilter(chi.URLParam(r, "id"))
	if err != nil {
		s.filterError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, filterResponse(f))
}

func (s *Server) handleSetFilterItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []string `json:"items"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	f, err := s.eng.SetFilterItems(chi.URLParam(r, "id"), req.Items)
	if err != nil {
		s.filterError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, filterResponse(f))
}

func (s *Server) handleRenameFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	f, err := s.eng.RenameFilter(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		s.filterError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, filterResponse(f))
}

func (s *Server) handleAddMinusWord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubclusterID string `json:"subclusterId"`
		Text         string `json:"text"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	f, err := s.eng.AddMinusWord(r.Context(), req.SubclusterID, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		s.filterError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, filterResponse(f))
}

func (s *Server) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.DeleteFilter(chi.URLParam(r, "id")); err != nil {
		s.filterError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.eng.GetConfig(chi.URLParam(r, "subclusterID"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Models       *[]string `json:"models"`
		Filters      *[]string `json:"filters"`
		ApplyFilters *bool     `json:"applyFilters"`
		MinFrequency *int      `json:"minFrequency"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.MinFrequency != nil && *req.MinFrequency < 0 {
		s.clientError(w, http.StatusBadRequest, "minFrequency must be non-negative")
		return
	}

	cfg, err := s.eng.UpdateConfig(r.Context(), chi.URLParam(r, "subclusterID"), reconcile.Patch{
		Models:       req.Models,
		Filters:      req.Filters,
		ApplyFilters: req.ApplyFilters,
		MinFrequency: req.MinFrequency,
	})
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.eng.ToggleFilterBinding(r.Context(),
		chi.URLParam(r, "subclusterID"), chi.URLParam(r, "filterID"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleBindModel(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.eng.BindModel(r.Context(),
		chi.URLParam(r, "subclusterID"), chi.URLParam(r, "modelID"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUnbindModel(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.eng.UnbindModel(r.Context(),
		chi.URLParam(r, "subclusterID"), chi.URLParam(r, "modelID"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []database.KeywordRecord `json:"records"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	report, err := s.eng.RunModelSync(r.Context(), chi.URLParam(r, "modelID"), req.Records)
	if err != nil {
		s.serverError(w, err)
		return
	}

	type targetResponse struct {
		SubclusterID   string `json:"subclusterId"`
		ClusterName    string `json:"clusterName,omitempty"`
		SubclusterName string `json:"subclusterName,omitempty"`
		New            int    `json:"new"`
		Updated        int    `json:"updated"`
		Error          string `json:"error,omitempty"`
	}
	targets := make([]targetResponse, len(report.Targets))
	for i, t := range report.Targets {
		targets[i] = targetResponse{
			SubclusterID:   t.SubclusterID,
			ClusterName:    t.ClusterName,
			SubclusterName: t.SubclusterName,
			New:            t.New,
			Updated:        t.Updated,
		}
		if t.Err != nil {
			targets[i].Error = t.Err.Error()
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"modelId": report.ModelID,
		"targets": targets,
	})
}

type filterJSON struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func filterResponse(f *database.Filter) filterJSON {
	items := f.Items
	if items == nil {
		items = []string{}
	}
	return filterJSON{ID: f.ID, Name: f.Name, Items: items}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// filterError maps registry errors to status codes.
func (s *Server) filterError(w http.ResponseWriter, err error) {
	var invalid *registry.ValidationError
	if errors.As(err, &invalid) {
		s.clientError(w, http.StatusBadRequest, err.Error())
		return
	}
	var dup *registry.DuplicateNameError
	if errors.As(err, &dup) {
		s.clientError(w, http.StatusConflict, err.Error())
		return
	}
	var notFound *registry.NotFoundError
	if errors.As(err, &notFound) {
		s.clientError(w, http.StatusNotFound, err.Error())
		return
	}
	s.serverError(w, err)
}

func (s *Server) clientError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.Error("request failed", "error", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", "error", err)
	}
}
