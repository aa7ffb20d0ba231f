package config

import "fmt"

// ServerConfig configures the inbound HTTP API.
type ServerConfig struct {
	Address string `json:"address"`
	// APIToken protects the audit log endpoint. Empty disables the check.
	APIToken     string `json:"api_token"`
	MaxBodyBytes int64  `json:"max_body_bytes"`
	// ShutdownSeconds bounds graceful shutdown.
	ShutdownSeconds int `json:"shutdown_seconds"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ShutdownSeconds <= 0 {
		c.ShutdownSeconds = 5
	}
}

func (c ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	return nil
}
