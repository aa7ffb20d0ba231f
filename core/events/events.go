package events

import (
	"time"

	"github.com/kilianp07/fleettrack/core/fleet"
	"github.com/kilianp07/fleettrack/core/telemetry"
)

// Event is implemented by every event published on the bus.
type Event interface {
	Kind() string
}

// CallEvent is published when a proxied call returns to its caller.
type CallEvent struct {
	RequestID string
	Service   string
	Outcome   telemetry.Outcome
	// Attempts counts provider calls for this request, retries included.
	Attempts int
	// Logins counts logins triggered by this request.
	Logins    int
	CallerSID bool
	// ProviderCode is the error code of the final response, if any.
	ProviderCode *telemetry.ErrorCode
	Err          error
	Duration     time.Duration
	Time         time.Time
}

func (CallEvent) Kind() string { return "call" }

// LoginEvent is published after every login attempt.
type LoginEvent struct {
	Success  bool
	Err      error
	Duration time.Duration
	Time     time.Time
}

func (LoginEvent) Kind() string { return "login" }

// PositionsEvent carries the positions decoded by one tracker poll.
type PositionsEvent struct {
	Positions []fleet.Position
	Time      time.Time
}

func (PositionsEvent) Kind() string { return "positions" }
