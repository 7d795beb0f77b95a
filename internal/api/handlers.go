package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/intake/internal/journal"
	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/outcome"
)

// maxOutcomeLimit caps GET /outcomes?limit=.
const maxOutcomeLimit = 1000

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	tracked := 0
	for _, m := range s.deps.Monitors {
		tracked += m.Status().Tracked
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Monitors:      len(s.deps.Monitors),
		Tracked:       tracked,
	})
}

func (s *Server) handleMonitors(w http.ResponseWriter, _ *http.Request) {
	out := make([]monitor.Status, 0, len(s.deps.Monitors))
	for _, m := range s.deps.Monitors {
		out = append(out, m.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	respondJSON(w, http.StatusOK, MonitorsResponse{Monitors: out})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitors[chi.URLParam(r, "name")]
	if !ok {
		s.writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	respondJSON(w, http.StatusOK, m.Status())
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := s.monitors[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	respondJSON(w, http.StatusOK, ItemsResponse{Monitor: name, Items: m.Snapshot()})
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Jobs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": s.deps.Jobs.Jobs()})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Outcomes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	q := journal.Query{
		Monitor: r.URL.Query().Get("monitor"),
		Kind:    outcome.Kind(r.URL.Query().Get("kind")),
	}
	switch q.Kind {
	case "", outcome.KindArchived, outcome.KindDeleted, outcome.KindError:
	default:
		s.writeError(w, http.StatusBadRequest, "kind must be archived, deleted or error")
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = min(n, maxOutcomeLimit)
	}

	recs, err := s.deps.Outcomes.Recent(r.Context(), q)
	if err != nil {
		s.logger.Error("Failed to query outcomes", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to query outcomes")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"outcomes": recs})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
