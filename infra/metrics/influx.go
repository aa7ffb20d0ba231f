package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/fleettrack/core/metrics"
	"github.com/kilianp07/fleettrack/infra/logger"
)

// InfluxSink writes proxy and fleet events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCall writes one telemetry_call point.
func (s *InfluxSink) RecordCall(m coremetrics.CallMetric) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("telemetry_call").
		AddTag("service", m.Service).
		AddTag("outcome", string(m.Outcome)).
		AddTag("caller_sid", strconv.FormatBool(m.CallerSID)).
		AddField("attempts", m.Attempts).
		AddField("logins", m.Logins).
		AddField("duration_ms", round3(m.Duration.Seconds()*1000)).
		SetTime(m.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordLogin writes one provider_login point.
func (s *InfluxSink) RecordLogin(m coremetrics.LoginMetric) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("provider_login").
		AddTag("success", strconv.FormatBool(m.Success)).
		AddField("duration_ms", round3(m.Duration.Seconds()*1000)).
		SetTime(m.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPositions writes one vehicle_position point per unit.
func (s *InfluxSink) RecordPositions(m coremetrics.PositionsMetric) error {
	if len(m.Positions) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(m.Positions))
	for _, pos := range m.Positions {
		ts := pos.Time
		if ts.IsZero() {
			ts = m.Time
		}
		points = append(points, write.NewPointWithMeasurement("vehicle_position").
			AddTag("unit_id", strconv.FormatInt(pos.UnitID, 10)).
			AddTag("name", pos.Name).
			AddField("lat", pos.Lat).
			AddField("lon", pos.Lon).
			AddField("speed_kmh", round3(pos.SpeedKMH)).
			AddField("course", round3(pos.Course)).
			AddField("satellites", pos.Satellites).
			SetTime(ts))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
