// Package wialon talks to a Wialon-style telemetry RPC endpoint
// (".../wialon/ajax.html"). Every call is a form-encoded POST of svc, params
// and sid; the answer is a JSON document.
package wialon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/fleettrack/config"
	"github.com/kilianp07/fleettrack/core/telemetry"
	"github.com/kilianp07/fleettrack/infra/logger"
)

const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxResponseBytes = 10_000_000
)

// Client posts RPC calls to the provider.
type Client struct {
	endpoint string
	http     *http.Client
	maxBytes int64
	log      logger.Logger
}

// NewClient creates a provider client from cfg.
func NewClient(cfg config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	return &Client{
		endpoint: cfg.URL,
		http:     &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		log:      logger.New("wialon-client"),
	}
}

// Do posts one RPC call. An empty sid is omitted from the form.
func (c *Client) Do(ctx context.Context, service string, params json.RawMessage, sid string) (telemetry.Response, error) {
	form := url.Values{}
	form.Set("svc", service)
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	form.Set("params", string(params))
	if sid != "" {
		form.Set("sid", sid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &telemetry.TransportError{Service: service, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &telemetry.TransportError{Service: service, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	limited := &io.LimitedReader{R: resp.Body, N: c.maxBytes + 1}
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &telemetry.TransportError{Service: service, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > c.maxBytes {
		return nil, &telemetry.TransportError{Service: service, Err: errors.New("response exceeds maximum length")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &telemetry.TransportError{Service: service, Err: fmt.Errorf("provider returned HTTP %d", resp.StatusCode)}
	}
	if !json.Valid(body) {
		return nil, &telemetry.ProtocolError{Service: service, Msg: "body is not JSON"}
	}
	c.log.Debugw("provider call", map[string]any{
		"service":     service,
		"status":      resp.StatusCode,
		"bytes":       len(body),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return telemetry.Response(body), nil
}
