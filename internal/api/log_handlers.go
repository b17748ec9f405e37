package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pysugar/nexus-console/internal/db/models"
	"github.com/pysugar/nexus-console/internal/logstore"
	"github.com/pysugar/nexus-console/internal/logview"
	"github.com/pysugar/nexus-console/internal/version"
)

// IngestLogHandler records one request log shipped by the gateway.
func IngestLogHandler(store *logstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry models.RequestLog
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		store.Record(entry)
		w.WriteHeader(http.StatusAccepted)
	}
}

// ListLogsHandler returns one unfiltered page of logs.
func ListLogsHandler(store *logstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", 0)
		sortBy := r.URL.Query().Get("sort_by")
		sortOrder := r.URL.Query().Get("sort_order")

		logs, err := store.List(page, pageSize, sortBy, sortOrder)
		if err != nil {
			http.Error(w, "Failed to list logs: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, logs)
	}
}

// SearchLogsHandler is the server side of the log search API the filter
// engine calls in backend mode.
func SearchLogsHandler(store *logstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params logview.SearchParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "Invalid search params", http.StatusBadRequest)
			return
		}
		for key := range params.Params {
			if !logview.IsFilterField(key) {
				http.Error(w, "Unknown filter field: "+key, http.StatusBadRequest)
				return
			}
		}

		page, err := store.Search(params)
		if err != nil {
			http.Error(w, "Search failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, page)
	}
}

// LogStatsHandler returns aggregated request statistics.
func LogStatsHandler(store *logstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, store.Stats())
	}
}

// ClearLogsHandler clears all request logs.
func ClearLogsHandler(store *logstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Clear(); err != nil {
			http.Error(w, "Failed to clear logs: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// VersionHandler reports the build version.
func VersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"version":    version.Version,
			"commit":     version.Commit,
			"build_time": version.BuildTime,
		})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
