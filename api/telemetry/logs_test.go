package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleettrack/core/audit"
	"github.com/kilianp07/fleettrack/core/telemetry"
)

type memStore struct {
	recs []audit.Record
	last audit.Query
	err  error
}

func (m *memStore) Append(_ context.Context, r audit.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q audit.Query) ([]audit.Record, error) {
	m.last = q
	if m.err != nil {
		return nil, m.err
	}
	var res []audit.Record
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func getLogs(h http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLogHandlerAuthAndFilters(t *testing.T) {
	now := time.Now().UTC()
	store := &memStore{}
	require.NoError(t, store.Append(context.Background(), audit.Record{ID: "a", Timestamp: now, Service: "core/x", Outcome: telemetry.OutcomeOK}))
	require.NoError(t, store.Append(context.Background(), audit.Record{ID: "b", Timestamp: now, Service: "core/y", Outcome: telemetry.OutcomeBusinessError}))
	h := NewLogHandler(store, "tok")

	rr := getLogs(h, "/api/telemetry/logs?service=core/x", "tok")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []audit.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)

	assert.Equal(t, http.StatusUnauthorized, getLogs(h, "/api/telemetry/logs", "").Code)
	assert.Equal(t, http.StatusUnauthorized, getLogs(h, "/api/telemetry/logs", "other").Code)
}

func TestLogHandlerQueryParsing(t *testing.T) {
	store := &memStore{}
	h := NewLogHandler(store, "")

	rr := getLogs(h, "/api/telemetry/logs?start=2026-01-01T00:00:00Z&end=2026-01-02T00:00:00Z&outcome=renewal_exhausted&limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), store.last.Start)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), store.last.End)
	assert.Equal(t, telemetry.OutcomeRenewalExhausted, store.last.Outcome)
	assert.Equal(t, 5, store.last.Limit)

	for _, q := range []string{"start=yesterday", "end=1", "limit=-1", "limit=many"} {
		assert.Equal(t, http.StatusBadRequest, getLogs(h, "/api/telemetry/logs?"+q, "").Code, q)
	}
}

func TestLogHandlerStoreError(t *testing.T) {
	h := NewLogHandler(&memStore{err: errors.New("disk gone")}, "")
	rr := getLogs(h, "/api/telemetry/logs", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestLogHandlerMethod(t *testing.T) {
	h := NewLogHandler(&memStore{}, "")
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry/logs", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
