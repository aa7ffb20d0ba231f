// Package testutil provides helpers shared by package tests: a fake telemetry
// provider served over httptest and a disposable Mosquitto broker.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ProviderCall is one request received by the FakeProvider.
type ProviderCall struct {
	Service     string
	Params      string
	SID         string
	HasSID      bool
	ContentType string
}

// ProviderHandler answers one call with a JSON body.
type ProviderHandler func(c ProviderCall) string

// FakeProvider mimics the telemetry RPC endpoint. token/login accepts Token
// and issues sequential sessions "sid-1", "sid-2", ... Other services answer
// {"error":1} for unknown or expired sessions, otherwise the registered
// handler's body (default "{}").
type FakeProvider struct {
	Token string

	srv *httptest.Server

	mu       sync.Mutex
	calls    []ProviderCall
	issued   int
	valid    map[string]bool
	handlers map[string]ProviderHandler
}

// NewFakeProvider starts a provider accepting token. It is closed with t.
func NewFakeProvider(t testing.TB, token string) *FakeProvider {
	t.Helper()
	f := &FakeProvider{Token: token, valid: map[string]bool{}, handlers: map[string]ProviderHandler{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// URL is the RPC endpoint address.
func (f *FakeProvider) URL() string { return f.srv.URL + "/wialon/ajax.html" }

// Close stops the server; later calls fail at the transport level.
func (f *FakeProvider) Close() { f.srv.Close() }

// Handle registers the answer for service.
func (f *FakeProvider) Handle(service string, h ProviderHandler) {
	f.mu.Lock()
	f.handlers[service] = h
	f.mu.Unlock()
}

// Issue creates a valid session without a login call.
func (f *FakeProvider) Issue() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked()
}

func (f *FakeProvider) issueLocked() string {
	f.issued++
	sid := fmt.Sprintf("sid-%d", f.issued)
	f.valid[sid] = true
	return sid
}

// Expire invalidates every session issued so far.
func (f *FakeProvider) Expire() {
	f.mu.Lock()
	f.valid = map[string]bool{}
	f.mu.Unlock()
}

// Calls returns a copy of every call received.
func (f *FakeProvider) Calls() []ProviderCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ProviderCall(nil), f.calls...)
}

// CallsTo returns the calls received for service.
func (f *FakeProvider) CallsTo(service string) []ProviderCall {
	var out []ProviderCall
	for _, c := range f.Calls() {
		if c.Service == service {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, hasSID := r.PostForm["sid"]
	c := ProviderCall{
		Service:     r.PostForm.Get("svc"),
		Params:      r.PostForm.Get("params"),
		SID:         r.PostForm.Get("sid"),
		HasSID:      hasSID,
		ContentType: r.Header.Get("Content-Type"),
	}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	var body string
	switch {
	case c.Service == "token/login":
		body = f.loginLocked(c)
	case !f.valid[c.SID]:
		body = `{"error":1}`
	default:
		if h, ok := f.handlers[c.Service]; ok {
			f.mu.Unlock()
			body = h(c)
			f.mu.Lock()
		} else {
			body = "{}"
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (f *FakeProvider) loginLocked(c ProviderCall) string {
	var p struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(c.Params), &p); err != nil || p.Token != f.Token {
		return `{"error":7,"reason":"access denied"}`
	}
	return fmt.Sprintf(`{"eid":%q,"user":{"nm":"fleet"}}`, f.issueLocked())
}
