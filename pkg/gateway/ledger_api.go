package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentplane/govern/pkg/ledger"
)

// ledgerRoutes exposes read-only projections over the append-only event
// store. These are operator endpoints; they never mutate events.
func (s *Service) ledgerRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/lineage", s.lineageHandler)
	r.Get("/blocked", s.blockedHandler)
	r.Get("/intersections", s.intersectionsHandler)
	r.Get("/events", s.eventsHandler)
	return r
}

func (s *Service) lineageHandler(w http.ResponseWriter, r *http.Request) {
	events, err := s.Ledger.GetLineage(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read lineage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventViews(events)})
}

func (s *Service) blockedHandler(w http.ResponseWriter, r *http.Request) {
	events, err := s.Ledger.GetBlocked(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read denials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventViews(events)})
}

func (s *Service) intersectionsHandler(w http.ResponseWriter, r *http.Request) {
	filter := ledger.IntersectionFilter{
		AgentID: r.URL.Query().Get("agentId"),
		TraceID: r.URL.Query().Get("traceId"),
		Limit:   queryInt(r, "limit", 0),
	}
	if from, ok := queryTime(r, "from"); ok {
		filter.From = &from
	}
	if to, ok := queryTime(r, "to"); ok {
		filter.To = &to
	}

	events, err := s.Ledger.GetIntersectionLog(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read intersection log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventViews(events)})
}

func (s *Service) eventsHandler(w http.ResponseWriter, r *http.Request) {
	var pageToken uint64
	if raw := r.URL.Query().Get("pageToken"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "pageToken must be a positive integer")
			return
		}
		pageToken = parsed
	}

	events, next, err := s.Ledger.ListAll(r.Context(),
		r.URL.Query().Get("actionType"), queryInt(r, "pageSize", 0), pageToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	resp := map[string]any{"events": toEventViews(events)}
	if next != 0 {
		resp["nextPageToken"] = strconv.FormatUint(next, 10)
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryTime(r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
