// Package audit records every proxied telemetry call and answers queries over
// the recorded history.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleettrack/core/events"
	"github.com/kilianp07/fleettrack/core/telemetry"
)

// Record captures one proxied call. Session identifiers are never stored.
type Record struct {
	ID           string               `json:"id"`
	Timestamp    time.Time            `json:"timestamp"`
	RequestID    string               `json:"request_id,omitempty"`
	Service      string               `json:"service"`
	Outcome      telemetry.Outcome    `json:"outcome"`
	CallerSID    bool                 `json:"caller_sid"`
	Attempts     int                  `json:"attempts"`
	Logins       int                  `json:"logins"`
	DurationMS   int64                `json:"duration_ms"`
	ProviderCode *telemetry.ErrorCode `json:"provider_code,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// FromEvent builds the record for ev.
func FromEvent(ev events.CallEvent) Record {
	rec := Record{
		ID:           uuid.NewString(),
		Timestamp:    ev.Time.UTC(),
		RequestID:    ev.RequestID,
		Service:      ev.Service,
		Outcome:      ev.Outcome,
		CallerSID:    ev.CallerSID,
		Attempts:     ev.Attempts,
		Logins:       ev.Logins,
		DurationMS:   ev.Duration.Milliseconds(),
		ProviderCode: ev.ProviderCode,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}

// Query defines filters for retrieving records. Zero values match everything.
// Limit keeps the most recent matches.
type Query struct {
	Start   time.Time
	End     time.Time
	Service string
	Outcome telemetry.Outcome
	Limit   int
}

// Match reports whether r passes the time, service and outcome filters.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Service != "" && r.Service != q.Service {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// finish orders recs by time and applies the limit.
func finish(recs []Record, limit int) []Record {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs
}
