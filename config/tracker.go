package config

import "fmt"

// TrackerConfig holds configuration for the vehicle position poller.
type TrackerConfig struct {
	Enabled         bool    `json:"enabled"`
	IntervalSeconds int     `json:"interval_seconds"`
	TimeoutSeconds  int     `json:"timeout_seconds"`
	UnitMask        string  `json:"unit_mask"`
	MovingSpeedKMH  float64 `json:"moving_speed_kmh"`
	StaleAfterMin   int     `json:"stale_after_minutes"`
	TopicPrefix     string  `json:"topic_prefix"`
}

func (c *TrackerConfig) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 30
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.UnitMask == "" {
		c.UnitMask = "*"
	}
	if c.MovingSpeedKMH <= 0 {
		c.MovingSpeedKMH = 3
	}
	if c.StaleAfterMin <= 0 {
		c.StaleAfterMin = 60
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "fleet/units"
	}
}

func (c TrackerConfig) Validate() error {
	if c.TimeoutSeconds > c.IntervalSeconds {
		return fmt.Errorf("timeout_seconds (%d) must not exceed interval_seconds (%d)", c.TimeoutSeconds, c.IntervalSeconds)
	}
	return nil
}
