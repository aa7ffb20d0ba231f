package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleettrack/config"
	"github.com/kilianp07/fleettrack/core/monitoring"
	"github.com/kilianp07/fleettrack/core/proxy"
	"github.com/kilianp07/fleettrack/core/telemetry"
	"github.com/kilianp07/fleettrack/infra/logger"
	"github.com/kilianp07/fleettrack/infra/wialon"
	"github.com/kilianp07/fleettrack/internal/testutil"
)

const testToken = "secret-token"

func newStack(t *testing.T, token string) (*testutil.FakeProvider, *Handler) {
	t.Helper()
	fp := testutil.NewFakeProvider(t, testToken)
	client := wialon.NewClient(config.ProviderConfig{URL: fp.URL(), TimeoutSeconds: 2})
	p := proxy.New(client, proxy.Options{Token: token, Logger: logger.NopLogger{}})
	return fp, NewHandler(p, 0, logger.NopLogger{})
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

type captureMonitor struct {
	errs []error
	tags []map[string]string
}

func (c *captureMonitor) CaptureException(err error, tags map[string]string) {
	c.errs = append(c.errs, err)
	c.tags = append(c.tags, tags)
}
func (c *captureMonitor) Recover()            {}
func (c *captureMonitor) Flush(time.Duration) {}

func withMonitor(t *testing.T) *captureMonitor {
	t.Helper()
	prev := monitoring.Current()
	m := &captureMonitor{}
	monitoring.Init(m)
	t.Cleanup(func() { monitoring.Init(prev) })
	return m
}

func TestHandlerFirstCallLogsIn(t *testing.T) {
	fp, h := newStack(t, testToken)
	fp.Handle("core/search_items", func(testutil.ProviderCall) string { return `{"items":[{"id":1}]}` })

	rr := post(t, h, `{"service":"core/search_items","params":{"spec":{}}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"items":[{"id":1}]}`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	calls := fp.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, telemetry.LoginService, calls[0].Service)
	assert.Equal(t, "sid-1", calls[1].SID)
}

func TestHandlerRenewsExpiredSession(t *testing.T) {
	fp, h := newStack(t, testToken)
	require.Equal(t, http.StatusOK, post(t, h, `{"service":"core/x","params":{}}`).Code)

	fp.Expire()
	rr := post(t, h, `{"service":"core/x","params":{}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{}`, rr.Body.String())
	assert.Len(t, fp.CallsTo(telemetry.LoginService), 2)
	assert.Len(t, fp.CallsTo("core/x"), 3)
}

func TestHandlerBusinessErrorPassesThrough(t *testing.T) {
	fp, h := newStack(t, testToken)
	fp.Handle("core/x", func(testutil.ProviderCall) string { return `{"error":6,"reason":"unknown"}` })

	rr := post(t, h, `{"service":"core/x","params":{}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"error":6,"reason":"unknown"}`, rr.Body.String())
	assert.Len(t, fp.CallsTo("core/x"), 1)
}

func TestHandlerRenewalExhaustedReturnsProviderAnswer(t *testing.T) {
	fp, h := newStack(t, testToken)
	fp.Handle("core/x", func(testutil.ProviderCall) string { return `{"error":4}` })

	rr := post(t, h, `{"service":"core/x","params":{}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"error":4}`, rr.Body.String())
	assert.Len(t, fp.CallsTo("core/x"), 2)
	assert.Len(t, fp.CallsTo(telemetry.LoginService), 2)
}

func TestHandlerValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		details string
	}{
		{name: "malformed", body: `{"service":`},
		{name: "missing service", body: `{"params":{}}`, details: "service is required"},
		{name: "missing params", body: `{"service":"core/x"}`, details: "params are required"},
		{name: "null params", body: `{"service":"core/x","params":null}`, details: "params are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, h := newStack(t, testToken)
			rr := post(t, h, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			body := decodeError(t, rr)
			assert.NotEmpty(t, body.Error)
			if tt.details != "" {
				assert.Equal(t, tt.details, body.Details)
			}
			assert.Empty(t, fp.Calls())
		})
	}
}

func TestHandlerBodyTooLarge(t *testing.T) {
	fp := testutil.NewFakeProvider(t, testToken)
	client := wialon.NewClient(config.ProviderConfig{URL: fp.URL()})
	h := NewHandler(proxy.New(client, proxy.Options{Token: testToken}), 16, nil)

	rr := post(t, h, `{"service":"core/x","params":{"a":"0123456789"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, fp.Calls())
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	_, h := newStack(t, testToken)
	req := httptest.NewRequest(http.MethodGet, "/api/telemetry", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
}

func TestHandlerMissingTokenIsServerError(t *testing.T) {
	mon := withMonitor(t)
	fp, h := newStack(t, "")

	rr := post(t, h, `{"service":"core/x","params":{}}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "proxy misconfigured", body.Error)
	assert.Empty(t, fp.Calls())
	require.Len(t, mon.errs, 1)
	assert.True(t, errors.Is(mon.errs[0], telemetry.ErrMissingToken))
	assert.Equal(t, "core/x", mon.tags[0]["service"])
}

func TestHandlerRejectedLoginIsServerError(t *testing.T) {
	withMonitor(t)
	fp, h := newStack(t, "wrong")

	rr := post(t, h, `{"service":"core/x","params":{}}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "provider login failed", decodeError(t, rr).Error)
	assert.Empty(t, fp.CallsTo("core/x"))
}

func TestHandlerProviderUnreachable(t *testing.T) {
	mon := withMonitor(t)
	fp, h := newStack(t, testToken)
	fp.Close()

	rr := post(t, h, `{"service":"core/x","params":{}}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "provider unreachable", decodeError(t, rr).Error)
	assert.Len(t, mon.errs, 1)
}

func TestHandlerCallerSession(t *testing.T) {
	fp, h := newStack(t, testToken)
	sid := fp.Issue()

	rr := post(t, h, `{"service":"core/x","params":{},"sid":"`+sid+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	calls := fp.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, sid, calls[0].SID)
}

type recordingExecutor struct {
	ctx context.Context
	req telemetry.Request
}

func (r *recordingExecutor) Execute(ctx context.Context, req telemetry.Request) (telemetry.Response, error) {
	r.ctx, r.req = ctx, req
	return telemetry.Response(`{"ok":true}`), nil
}

func TestHandlerPropagatesRequestID(t *testing.T) {
	exec := &recordingExecutor{}
	h := NewHandler(exec, 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(`{"service":"core/x","params":{"a":1},"sid":"abc"}`))
	req.Header.Set(RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "req-42", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", telemetry.RequestID(exec.ctx))
	assert.Equal(t, "abc", exec.req.SID)
	assert.JSONEq(t, `{"a":1}`, string(exec.req.Params))
}
