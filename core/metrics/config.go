package metrics

// Config defines settings for metrics sinks.
type Config struct {
	// PrometheusEnabled exposes collectors on GET /metrics.
	PrometheusEnabled bool         `json:"prometheus_enabled"`
	Influx            InfluxConfig `json:"influx"`
}

// InfluxConfig points the InfluxDB sink at a v2 bucket.
type InfluxConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
	Org     string `json:"org"`
	Bucket  string `json:"bucket"`
}
