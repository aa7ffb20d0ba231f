// Package tracker polls the provider for unit positions and keeps the fleet
// store, the MQTT broker and the event bus up to date.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/fleettrack/config"
	"github.com/kilianp07/fleettrack/core/events"
	"github.com/kilianp07/fleettrack/core/fleet"
	"github.com/kilianp07/fleettrack/core/monitoring"
	"github.com/kilianp07/fleettrack/core/telemetry"
	"github.com/kilianp07/fleettrack/infra/logger"
	"github.com/kilianp07/fleettrack/infra/wialon"
	"github.com/kilianp07/fleettrack/internal/eventbus"
)

// Caller issues a telemetry call on the proxy session.
type Caller interface {
	Call(ctx context.Context, service string, params json.RawMessage) (telemetry.Response, error)
}

// PositionPublisher forwards positions to an external consumer.
type PositionPublisher interface {
	PublishPositions(ctx context.Context, positions []fleet.Position) error
}

// Options carries the optional collaborators of a Tracker.
type Options struct {
	Publisher PositionPublisher
	Bus       eventbus.Publisher[events.Event]
	Logger    logger.Logger
}

// Tracker polls unit positions on a fixed interval.
type Tracker struct {
	caller   Caller
	store    fleet.Store
	pub      PositionPublisher
	bus      eventbus.Publisher[events.Event]
	log      logger.Logger
	params   json.RawMessage
	interval time.Duration
	timeout  time.Duration
}

// New creates a Tracker from cfg. Unset durations fall back to the config
// defaults.
func New(cfg config.TrackerConfig, caller Caller, store fleet.Store, opts Options) *Tracker {
	cfg.SetDefaults()
	if opts.Logger == nil {
		opts.Logger = logger.New("tracker")
	}
	return &Tracker{
		caller:   caller,
		store:    store,
		pub:      opts.Publisher,
		bus:      opts.Bus,
		log:      opts.Logger,
		params:   wialon.SearchUnitsParams(cfg.UnitMask),
		interval: time.Duration(cfg.IntervalSeconds) * time.Second,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Start polls once immediately, then on every tick until ctx is done.
func (t *Tracker) Start(ctx context.Context) error {
	defer monitoring.Recover()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	t.pollAndReport(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.pollAndReport(ctx)
		}
	}
}

func (t *Tracker) pollAndReport(ctx context.Context) {
	if _, err := t.Poll(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		t.log.Errorf("poll error: %v", err)
		monitoring.CaptureException(err, map[string]string{"module": "tracker"})
	}
}

// Poll fetches the current positions once and distributes them. A publish
// failure is logged; the positions are still stored and returned.
func (t *Tracker) Poll(ctx context.Context) ([]fleet.Position, error) {
	pollCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.caller.Call(pollCtx, wialon.SearchItemsService, t.params)
	if err != nil {
		return nil, fmt.Errorf("search units: %w", err)
	}
	positions, err := wialon.DecodeUnits(resp)
	if err != nil {
		return nil, err
	}
	t.store.Upsert(positions...)
	t.log.Debugf("tracked %d unit(s)", len(positions))

	if t.pub != nil && len(positions) > 0 {
		if err := t.pub.PublishPositions(pollCtx, positions); err != nil {
			t.log.Warnf("publish positions: %v", err)
		}
	}
	if t.bus != nil {
		t.bus.Publish(events.PositionsEvent{Positions: positions, Time: time.Now()})
	}
	return positions, nil
}
