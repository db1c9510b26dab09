package controlapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/aqa-systems/brain/internal/history"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.History == nil {
		writeError(w, r, apierrors.InvalidConfig("history", "not configured"))
		return
	}

	q := r.URL.Query()
	filter := history.ListFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st := history.Status(raw)
		filter.Status = &st
	}
	if raw := strings.TrimSpace(q.Get("start_date")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.StartDate = &t
		}
	}
	if raw := strings.TrimSpace(q.Get("end_date")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.EndDate = &t
		}
	}
	if raw := strings.TrimSpace(q.Get("tags")); raw != "" {
		filter.Tags = strings.Split(raw, ",")
	}

	records, err := s.History.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "records": records})
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.History == nil {
		writeError(w, r, apierrors.InvalidConfig("history", "not configured"))
		return
	}
	stats, err := s.History.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "stats": stats})
}

// handleHistoryItem serves GET and DELETE /history/{id}.
func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, r, apierrors.InvalidConfig("history", "not configured"))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/history/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.History.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "record": record})

	case http.MethodDelete:
		deleted, err := s.History.Delete(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !deleted {
			writeError(w, r, apierrors.NotFound("history record", id))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
