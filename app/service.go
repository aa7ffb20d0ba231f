package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apitelemetry "github.com/kilianp07/fleettrack/api/telemetry"
	"github.com/kilianp07/fleettrack/api/vehicles"
	"github.com/kilianp07/fleettrack/config"
	"github.com/kilianp07/fleettrack/core/audit"
	"github.com/kilianp07/fleettrack/core/events"
	"github.com/kilianp07/fleettrack/core/fleet"
	coremetrics "github.com/kilianp07/fleettrack/core/metrics"
	coremon "github.com/kilianp07/fleettrack/core/monitoring"
	"github.com/kilianp07/fleettrack/core/proxy"
	"github.com/kilianp07/fleettrack/infra/logger"
	"github.com/kilianp07/fleettrack/infra/metrics"
	"github.com/kilianp07/fleettrack/infra/monitoring"
	"github.com/kilianp07/fleettrack/infra/mqtt"
	"github.com/kilianp07/fleettrack/infra/wialon"
	"github.com/kilianp07/fleettrack/internal/eventbus"
	"github.com/kilianp07/fleettrack/jobs/tracker"
)

var newSink = metrics.NewSink

// Service wires the proxy, the HTTP API and the background jobs.
type Service struct {
	Proxy *proxy.Proxy
	Fleet *fleet.MemoryStore
	Audit audit.Store

	cfg       *config.Config
	bus       *eventbus.TypedBus[events.Event]
	sink      coremetrics.MetricsSink
	registry  *prometheus.Registry
	tracker   *tracker.Tracker
	publisher *mqtt.PositionPublisher
	handler   http.Handler
	log       logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink, err := newSink(cfg.Metrics, registry)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	store, err := audit.Open(cfg.Audit)
	if err != nil {
		closeSink(sink)
		return nil, fmt.Errorf("audit store: %w", err)
	}

	bus := eventbus.NewTyped[events.Event]()
	px := proxy.New(wialon.NewClient(cfg.Provider), proxy.Options{
		Token:       cfg.Provider.Token,
		MaxRenewals: cfg.Provider.MaxRenewals,
		Bus:         bus,
		Logger:      logger.New("telemetry-proxy"),
	})

	svc := &Service{
		Proxy:    px,
		Fleet:    fleet.NewMemoryStore(),
		Audit:    store,
		cfg:      cfg,
		bus:      bus,
		sink:     sink,
		registry: registry,
		log:      logg,
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPositionPublisher(cfg.MQTT.Config, cfg.Tracker.TopicPrefix)
		if err != nil {
			_ = store.Close()
			closeSink(sink)
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	if cfg.Tracker.Enabled {
		opts := tracker.Options{Bus: bus, Logger: logger.New("tracker")}
		if svc.publisher != nil {
			opts.Publisher = svc.publisher
		}
		svc.tracker = tracker.New(cfg.Tracker, px, svc.Fleet, opts)
	}
	svc.handler = svc.routes()
	return svc, nil
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/telemetry", apitelemetry.NewHandler(s.Proxy, s.cfg.Server.MaxBodyBytes, logger.New("telemetry-api")))
	mux.Handle("/api/telemetry/logs", apitelemetry.NewLogHandler(s.Audit, s.cfg.Server.APIToken))
	mux.Handle("/api/vehicles/positions", vehicles.NewPositionsHandler(s.Fleet))
	mux.Handle("/api/vehicles/positions/{id}", vehicles.NewPositionHandler(s.Fleet))
	mux.Handle("/api/vehicles/summary", vehicles.NewSummaryHandler(s.Fleet,
		s.cfg.Tracker.MovingSpeedKMH, time.Duration(s.cfg.Tracker.StaleAfterMin)*time.Minute))
	if s.cfg.Metrics.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", s.health)
	return mux
}

func (s *Service) health(w http.ResponseWriter, _ *http.Request) {
	_, ok := s.Proxy.Session()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"session": ok,
		"tracked": len(s.Fleet.List(fleet.Filter{})),
	})
}

// closeSink releases sinks holding a connection, such as InfluxDB.
func closeSink(sink coremetrics.MetricsSink) {
	if c, ok := sink.(interface{ Close() }); ok {
		c.Close()
	}
}

// Handler returns the HTTP routes served by Run.
func (s *Service) Handler() http.Handler { return s.handler }

// Start launches the bus subscribers and the tracker. They stop with ctx.
func (s *Service) Start(ctx context.Context) {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	audit.StartRecorder(ctx, s.bus, s.Audit, logger.New("audit"))
	if s.tracker != nil {
		go func() {
			if err := s.tracker.Start(ctx); err != nil {
				s.log.Errorf("tracker error: %v", err)
			}
		}()
	}
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	s.Start(ctx)
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	s.bus.Close()
	closeSink(s.sink)
	flush := time.Duration(s.cfg.Sentry.FlushSeconds) * time.Second
	if flush <= 0 {
		flush = 2 * time.Second
	}
	coremon.Flush(flush)
	return s.Audit.Close()
}
