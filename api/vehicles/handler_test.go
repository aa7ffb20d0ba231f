package vehicles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleettrack/core/fleet"
)

var fixTime = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func seededStore() *fleet.MemoryStore {
	store := fleet.NewMemoryStore()
	store.Upsert(
		fleet.Position{UnitID: 1, Name: "Truck 01", SpeedKMH: 60, Time: fixTime},
		fleet.Position{UnitID: 2, Name: "Van 07", SpeedKMH: 0, Time: fixTime.Add(-2 * time.Hour)},
		fleet.Position{UnitID: 3, Name: "truck 02", SpeedKMH: 30, Time: fixTime},
	)
	return store
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestPositionsHandler(t *testing.T) {
	h := NewPositionsHandler(seededStore())

	rr := serve(t, h, http.MethodGet, "/api/vehicles/positions")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []fleet.Position
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Len(t, out, 3)

	rr = serve(t, h, http.MethodGet, "/api/vehicles/positions?name=TRUCK")
	require.Equal(t, http.StatusOK, rr.Code)
	out = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "Truck 01", out[0].Name)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, h, http.MethodPost, "/api/vehicles/positions").Code)
}

func TestPositionsHandlerEmpty(t *testing.T) {
	rr := serve(t, NewPositionsHandler(fleet.NewMemoryStore()), http.MethodGet, "/api/vehicles/positions")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestPositionsHandlerFormats(t *testing.T) {
	h := NewPositionsHandler(seededStore())

	rr := serve(t, h, http.MethodGet, "/api/vehicles/positions?format=csv&name=van")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Van 07")

	rr = serve(t, h, http.MethodGet, "/api/vehicles/positions?format=json")
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodGet, "/api/vehicles/positions?format=xml").Code)
}

func TestPositionHandler(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/api/vehicles/positions/{id}", NewPositionHandler(seededStore()))

	rr := serve(t, mux, http.MethodGet, "/api/vehicles/positions/2")
	require.Equal(t, http.StatusOK, rr.Code)
	var p fleet.Position
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "Van 07", p.Name)

	assert.Equal(t, http.StatusNotFound, serve(t, mux, http.MethodGet, "/api/vehicles/positions/99").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, mux, http.MethodGet, "/api/vehicles/positions/abc").Code)
}

func TestSummaryHandler(t *testing.T) {
	h := newSummaryHandler(seededStore(), 5, time.Hour, func() time.Time { return fixTime.Add(time.Minute) })

	rr := serve(t, h, http.MethodGet, "/api/vehicles/summary")
	require.Equal(t, http.StatusOK, rr.Code)
	var s fleet.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Moving)
	assert.Equal(t, 1, s.Stale)
	assert.InDelta(t, 30.0, s.MeanSpeedKMH, 1e-9)
	assert.InDelta(t, 60.0, s.MaxSpeedKMH, 1e-9)
	assert.True(t, fixTime.Equal(s.LastFix))
}
