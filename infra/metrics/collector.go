package metrics

import (
	"context"

	"github.com/kilianp07/fleettrack/core/events"
	coremetrics "github.com/kilianp07/fleettrack/core/metrics"
	"github.com/kilianp07/fleettrack/infra/logger"
	"github.com/kilianp07/fleettrack/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Event], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %s event: %v", ev.Kind(), err)
				}
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev events.Event) error {
	switch e := ev.(type) {
	case events.CallEvent:
		return sink.RecordCall(coremetrics.CallMetric{
			Service:   e.Service,
			Outcome:   e.Outcome,
			Attempts:  e.Attempts,
			Logins:    e.Logins,
			CallerSID: e.CallerSID,
			Duration:  e.Duration,
			Time:      e.Time,
		})
	case events.LoginEvent:
		if r, ok := sink.(coremetrics.LoginRecorder); ok {
			return r.RecordLogin(coremetrics.LoginMetric{Success: e.Success, Duration: e.Duration, Time: e.Time})
		}
	case events.PositionsEvent:
		if r, ok := sink.(coremetrics.PositionRecorder); ok {
			return r.RecordPositions(coremetrics.PositionsMetric{Positions: e.Positions, Time: e.Time})
		}
	}
	return nil
}
