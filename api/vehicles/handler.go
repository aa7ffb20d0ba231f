package vehicles

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/fleettrack/core/fleet"
	"github.com/kilianp07/fleettrack/pkg/export"
)

// NewPositionsHandler returns an HTTP handler exposing the last known unit
// positions via GET /api/vehicles/positions. The optional "name" query
// parameter filters units by name substring; format=csv switches the body to
// CSV.
func NewPositionsHandler(store fleet.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		positions := store.List(fleet.Filter{NameContains: q.Get("name")})
		switch q.Get("format") {
		case "", export.FormatJSON:
			w.Header().Set("Content-Type", "application/json")
			if err := export.WriteJSON(w, positions); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		case export.FormatCSV:
			w.Header().Set("Content-Type", "text/csv")
			if err := export.WriteCSV(w, positions); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		default:
			http.Error(w, "unsupported format", http.StatusBadRequest)
		}
	})
}

// NewPositionHandler serves GET /api/vehicles/positions/{id}.
func NewPositionHandler(store fleet.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid unit id", http.StatusBadRequest)
			return
		}
		p, ok := store.Get(id)
		if !ok {
			http.Error(w, "unit not found", http.StatusNotFound)
			return
		}
		writeJSON(w, p)
	})
}

// NewSummaryHandler returns an HTTP handler exposing fleet statistics via
// GET /api/vehicles/summary.
func NewSummaryHandler(store fleet.Store, movingKMH float64, staleAfter time.Duration) http.Handler {
	return newSummaryHandler(store, movingKMH, staleAfter, time.Now)
}

func newSummaryHandler(store fleet.Store, movingKMH float64, staleAfter time.Duration, now func() time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, fleet.Summarize(store.List(fleet.Filter{}), movingKMH, staleAfter, now()))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
