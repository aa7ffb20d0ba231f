package scenarios

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitelemetry "github.com/kilianp07/fleettrack/api/telemetry"
	"github.com/kilianp07/fleettrack/config"
	"github.com/kilianp07/fleettrack/core/proxy"
	"github.com/kilianp07/fleettrack/core/telemetry"
	"github.com/kilianp07/fleettrack/infra/logger"
	"github.com/kilianp07/fleettrack/infra/wialon"
	"github.com/kilianp07/fleettrack/internal/testutil"
)

// RunScenario replays sc against a fresh provider, proxy and endpoint.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	fp := testutil.NewFakeProvider(t, sc.ProviderToken)
	for service, answers := range sc.Services {
		fp.Handle(service, sequence(answers))
	}
	client := wialon.NewClient(config.ProviderConfig{URL: fp.URL(), TimeoutSeconds: 2})
	px := proxy.New(client, proxy.Options{Token: sc.ProxyToken(), Logger: logger.NopLogger{}})
	h := apitelemetry.NewHandler(px, 0, logger.NopLogger{})

	for i, st := range sc.Steps {
		if st.Expire {
			fp.Expire()
		}
		if st.Request == "" {
			continue
		}
		req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(st.Request))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		require.Equalf(t, st.Status, rr.Code, "step %d: body %s", i, rr.Body.String())
		if st.Body != "" {
			assert.JSONEqf(t, st.Body, rr.Body.String(), "step %d", i)
		}
		if st.ErrorContains != "" || st.DetailsContains != "" {
			var body struct {
				Error   string `json:"error"`
				Details string `json:"details"`
			}
			require.NoErrorf(t, json.Unmarshal(rr.Body.Bytes(), &body), "step %d", i)
			assert.Containsf(t, body.Error, st.ErrorContains, "step %d", i)
			assert.Containsf(t, body.Details, st.DetailsContains, "step %d", i)
		}
	}

	assert.Len(t, fp.CallsTo(telemetry.LoginService), sc.Expected.Logins, "logins")
	assert.Len(t, fp.Calls(), sc.Expected.ProviderCalls, "provider calls")
}

// sequence answers with each body in turn, repeating the last one.
func sequence(answers []string) testutil.ProviderHandler {
	var (
		mu sync.Mutex
		i  int
	)
	return func(testutil.ProviderCall) string {
		mu.Lock()
		defer mu.Unlock()
		if len(answers) == 0 {
			return "{}"
		}
		a := answers[i]
		if i < len(answers)-1 {
			i++
		}
		return a
	}
}
