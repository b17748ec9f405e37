package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/nexus-console/internal/logview"
)

// sessionView is the JSON shape handed back for every session read.
type sessionView struct {
	SessionID         string              `json:"session_id"`
	Filters           logview.FilterState `json:"filters"`
	Logs              logview.Page        `json:"logs"`
	BackendDefinitive bool                `json:"backend_definitive"`
}

func viewOf(sess *Session) sessionView {
	return sessionView{
		SessionID:         sess.ID,
		Filters:           sess.Filters(),
		Logs:              sess.Results(),
		BackendDefinitive: sess.BackendDefinitive(),
	}
}

// CreateSessionHandler opens a new log view session.
func CreateSessionHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StartTime  string `json:"start_time"`
			EndTime    string `json:"end_time"`
			CustomDate bool   `json:"custom_date"`
			SortBy     string `json:"sort_by"`
			SortOrder  string `json:"sort_order"`
		}
		if r.Body != nil {
			// An empty body means defaults; a malformed one is an error.
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
		}

		opts := SessionOptions{
			IsCustomDate: req.CustomDate,
			SortBy:       req.SortBy,
			SortOrder:    req.SortOrder,
		}
		now := time.Now()
		opts.StartTime, opts.EndTime = now.Add(-24*time.Hour), now
		if t, err := time.ParseInLocation(logview.TimeLayout, req.StartTime, time.Local); err == nil {
			opts.StartTime = t
		}
		if t, err := time.ParseInLocation(logview.TimeLayout, req.EndTime, time.Local); err == nil {
			opts.EndTime = t
		}

		sess, err := registry.Create(opts)
		if err != nil {
			http.Error(w, "Failed to create session: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(viewOf(sess))
	}
}

// GetSessionLogsHandler returns the session's current filtered view.
func GetSessionLogsHandler(registry *Registry) http.HandlerFunc {
	return withSession(registry, func(w http.ResponseWriter, r *http.Request, sess *Session) {
		writeJSON(w, viewOf(sess))
	})
}

// ApplyFiltersHandler merges a partial filter update into the session.
func ApplyFiltersHandler(registry *Registry) http.HandlerFunc {
	return withSession(registry, func(w http.ResponseWriter, r *http.Request, sess *Session) {
		var raw map[string]string
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		update := logview.NewFilterState()
		for key, value := range raw {
			if !logview.IsFilterField(key) {
				http.Error(w, "Unknown filter field: "+key, http.StatusBadRequest)
				return
			}
			update[logview.FilterField(key)] = value
		}

		sess.ApplyFilters(update)
		writeJSON(w, viewOf(sess))
	})
}

// ResetFiltersHandler clears all session filters.
func ResetFiltersHandler(registry *Registry) http.HandlerFunc {
	return withSession(registry, func(w http.ResponseWriter, r *http.Request, sess *Session) {
		sess.ResetFilters()
		writeJSON(w, viewOf(sess))
	})
}

// SetPageHandler moves the session to another page.
func SetPageHandler(registry *Registry) http.HandlerFunc {
	return withSession(registry, func(w http.ResponseWriter, r *http.Request, sess *Session) {
		var req struct {
			Page int `json:"page"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Page < 1 {
			http.Error(w, "Invalid page", http.StatusBadRequest)
			return
		}
		if err := sess.SetPage(req.Page); err != nil {
			http.Error(w, "Failed to load page: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, viewOf(sess))
	})
}

// SetSortHandler changes the session sort order.
func SetSortHandler(registry *Registry) http.HandlerFunc {
	return withSession(registry, func(w http.ResponseWriter, r *http.Request, sess *Session) {
		var req struct {
			SortBy    string `json:"sort_by"`
			SortOrder string `json:"sort_order"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := sess.SetSort(req.SortBy, req.SortOrder); err != nil {
			http.Error(w, "Failed to re-sort: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, viewOf(sess))
	})
}

// DeleteSessionHandler closes a session.
func DeleteSessionHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registry.Delete(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func withSession(registry *Registry, next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := registry.Get(chi.URLParam(r, "id"))
		if !ok {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		next(w, r, sess)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
