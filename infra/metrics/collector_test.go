package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleettrack/core/events"
	"github.com/kilianp07/fleettrack/core/fleet"
	coremetrics "github.com/kilianp07/fleettrack/core/metrics"
	"github.com/kilianp07/fleettrack/core/telemetry"
	"github.com/kilianp07/fleettrack/internal/eventbus"
)

type recordSink struct {
	mu        sync.Mutex
	calls     []coremetrics.CallMetric
	logins    []coremetrics.LoginMetric
	positions []coremetrics.PositionsMetric
}

func (r *recordSink) RecordCall(m coremetrics.CallMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, m)
	return nil
}

func (r *recordSink) RecordLogin(m coremetrics.LoginMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, m)
	return nil
}

func (r *recordSink) RecordPositions(m coremetrics.PositionsMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, m)
	return nil
}

func (r *recordSink) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls), len(r.logins), len(r.positions)
}

// callsOnly implements only the mandatory interface.
type callsOnly struct{ n int }

func (c *callsOnly) RecordCall(coremetrics.CallMetric) error {
	c.n++
	return nil
}

type closingSink struct {
	callsOnly
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestStartEventCollector(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := eventbus.NewTyped[events.Event]()
	sink := &recordSink{}
	StartEventCollector(ctx, bus, sink)

	bus.Publish(events.CallEvent{Service: "core/x", Outcome: telemetry.OutcomeOK, Attempts: 1})
	bus.Publish(events.LoginEvent{Success: true})
	bus.Publish(events.PositionsEvent{Positions: []fleet.Position{{UnitID: 1}}})

	require.Eventually(t, func() bool {
		c, l, p := sink.counts()
		return c == 1 && l == 1 && p == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "core/x", sink.calls[0].Service)
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &callsOnly{}
	m := NewMultiSink(s1, s2)
	require.NoError(t, m.RecordCall(coremetrics.CallMetric{}))
	require.NoError(t, m.RecordLogin(coremetrics.LoginMetric{}))
	require.NoError(t, m.RecordPositions(coremetrics.PositionsMetric{}))

	c, l, p := s1.counts()
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{c, l, p})
	assert.Equal(t, 1, s2.n)

	cs := &closingSink{}
	NewMultiSink(s1, cs).Close()
	assert.True(t, cs.closed)
}

func TestNewSink(t *testing.T) {
	sink, err := NewSink(coremetrics.Config{}, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, sink)

	sink, err = NewSink(coremetrics.Config{PrometheusEnabled: true}, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &PromSink{}, sink)
}
