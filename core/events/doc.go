// Package events defines the telemetry related events emitted on the event
// bus.
//
// Available event types:
//   - CallEvent: one proxied telemetry call finished
//   - LoginEvent: a provider login attempt finished
//   - PositionsEvent: the tracker refreshed unit positions
package events
