package metrics

import coremetrics "github.com/kilianp07/fleettrack/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCall forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordCall(c coremetrics.CallMetric) error {
	for _, s := range m.Sinks {
		if err := s.RecordCall(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordLogin forwards login records when supported by the sink.
func (m *MultiSink) RecordLogin(l coremetrics.LoginMetric) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.LoginRecorder); ok {
			if err := rec.RecordLogin(l); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPositions forwards position records when supported by the sink.
func (m *MultiSink) RecordPositions(p coremetrics.PositionsMetric) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.PositionRecorder); ok {
			if err := rec.RecordPositions(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink holding a connection.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
