// Package metrics defines the sinks recording proxy and fleet activity.
// Every sink implements MetricsSink; LoginRecorder and PositionRecorder are
// optional and detected with a type assertion. Implementations live in
// infra/metrics.
package metrics
