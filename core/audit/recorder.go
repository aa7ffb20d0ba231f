package audit

import (
	"context"
	"fmt"

	"github.com/kilianp07/fleettrack/config"
	"github.com/kilianp07/fleettrack/core/events"
	"github.com/kilianp07/fleettrack/infra/logger"
	"github.com/kilianp07/fleettrack/internal/eventbus"
)

// NopStore discards records. It backs the "none" backend.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return []Record{}, nil }
func (NopStore) Close() error                                   { return nil }

// Open creates the store selected by cfg.
func Open(cfg config.AuditConfig) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return NopStore{}, nil
	case "jsonl":
		return NewJSONLStore(cfg.Path, Rotation{
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
		})
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

// StartRecorder subscribes to bus and appends a Record for every CallEvent.
// The returned channel is closed once the subscriber has stopped, which
// happens when ctx is canceled or the bus is closed.
func StartRecorder(ctx context.Context, bus *eventbus.TypedBus[events.Event], store Store, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || store == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				call, isCall := ev.(events.CallEvent)
				if !isCall {
					continue
				}
				rec := FromEvent(call)
				if err := store.Append(context.WithoutCancel(ctx), rec); err != nil {
					log.Errorf("audit append %s: %v", rec.Service, err)
				}
			}
		}
	}()
	return done
}
