// Package infra holds the adapters fleettrack talks to the outside world
// through: the provider RPC client, MQTT, metrics sinks, Sentry and logging.
// They implement interfaces declared under core/.
package infra
