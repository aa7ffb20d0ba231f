package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fleettrack/core/metrics"
)

// PromSink records proxy and fleet activity in Prometheus metrics.
type PromSink struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	attempts *prometheus.HistogramVec
	logins   *prometheus.CounterVec
	tracked  prometheus.Gauge
	moving   prometheus.Gauge
}

// NewPromSink registers the collectors on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_calls_total",
		Help: "Total number of proxied telemetry calls",
	}, []string{"service", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telemetry_call_duration_seconds",
		Help:    "Time spent serving a proxied call, renewals included",
		Buckets: prometheus.DefBuckets,
	}, []string{"service"})
	attempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telemetry_call_attempts",
		Help:    "Provider requests issued per proxied call",
		Buckets: []float64{1, 2, 3, 4, 6},
	}, []string{"caller_sid"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_logins_total",
		Help: "Total number of provider logins",
	}, []string{"success"})
	tracked := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_tracked_units",
		Help: "Number of units returned by the last tracker poll",
	})
	moving := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_moving_units",
		Help: "Number of units with a non-zero speed in the last tracker poll",
	})

	var err error
	if calls, err = register(reg, calls); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if attempts, err = register(reg, attempts); err != nil {
		return nil, err
	}
	if logins, err = register(reg, logins); err != nil {
		return nil, err
	}
	if tracked, err = register(reg, tracked); err != nil {
		return nil, err
	}
	if moving, err = register(reg, moving); err != nil {
		return nil, err
	}
	return &PromSink{calls: calls, duration: duration, attempts: attempts, logins: logins, tracked: tracked, moving: moving}, nil
}

// register returns the collector already registered under the same
// descriptor, if any.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCall counts the call and observes its duration and attempts.
func (s *PromSink) RecordCall(m coremetrics.CallMetric) error {
	s.calls.WithLabelValues(m.Service, string(m.Outcome)).Inc()
	s.duration.WithLabelValues(m.Service).Observe(m.Duration.Seconds())
	if m.Attempts > 0 {
		s.attempts.WithLabelValues(strconv.FormatBool(m.CallerSID)).Observe(float64(m.Attempts))
	}
	return nil
}

// RecordLogin counts a login attempt.
func (s *PromSink) RecordLogin(m coremetrics.LoginMetric) error {
	s.logins.WithLabelValues(strconv.FormatBool(m.Success)).Inc()
	return nil
}

// RecordPositions sets the fleet gauges.
func (s *PromSink) RecordPositions(m coremetrics.PositionsMetric) error {
	moving := 0
	for _, p := range m.Positions {
		if p.SpeedKMH > 0 {
			moving++
		}
	}
	s.tracked.Set(float64(len(m.Positions)))
	s.moving.Set(float64(moving))
	return nil
}
