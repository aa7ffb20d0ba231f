package config

import (
	"fmt"
	"net/url"
)

// DefaultProviderURL is the public Wialon Hosting RPC endpoint.
const DefaultProviderURL = "https://hst-api.wialon.com/wialon/ajax.html"

// ProviderConfig describes the telemetry provider and the server-held login
// token. The token is never sent to browsers.
type ProviderConfig struct {
	URL              string `json:"url"`
	Token            string `json:"token"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	MaxResponseBytes int64  `json:"max_response_bytes"`
	// MaxRenewals bounds login-and-retry cycles per call on an expired
	// session.
	MaxRenewals int `json:"max_renewals"`
}

func (c *ProviderConfig) SetDefaults() {
	if c.URL == "" {
		c.URL = DefaultProviderURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = 10_000_000
	}
	if c.MaxRenewals <= 0 {
		c.MaxRenewals = 1
	}
}

func (c ProviderConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must be http or https, got %q", c.URL)
	}
	return nil
}
