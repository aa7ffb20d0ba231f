package metrics

import (
	"time"

	"github.com/kilianp07/fleettrack/core/fleet"
	"github.com/kilianp07/fleettrack/core/telemetry"
)

// CallMetric describes one proxied call as seen by its caller.
type CallMetric struct {
	Service   string
	Outcome   telemetry.Outcome
	Attempts  int
	Logins    int
	CallerSID bool
	Duration  time.Duration
	Time      time.Time
}

// MetricsSink records proxied calls.
type MetricsSink interface {
	RecordCall(m CallMetric) error
}

// LoginMetric describes one login round trip.
type LoginMetric struct {
	Success  bool
	Duration time.Duration
	Time     time.Time
}

// LoginRecorder records login attempts.
type LoginRecorder interface {
	RecordLogin(m LoginMetric) error
}

// PositionsMetric is the set of fixes returned by one tracker poll.
type PositionsMetric struct {
	Positions []fleet.Position
	Time      time.Time
}

// PositionRecorder records tracked unit positions.
type PositionRecorder interface {
	RecordPositions(m PositionsMetric) error
}

// NopSink is a MetricsSink that does nothing.
type NopSink struct{}

func (NopSink) RecordCall(CallMetric) error           { return nil }
func (NopSink) RecordLogin(LoginMetric) error         { return nil }
func (NopSink) RecordPositions(PositionsMetric) error { return nil }
