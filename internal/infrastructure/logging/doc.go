// Package logging builds the slog logger shared by Seestar Core's
// components.
//
// Every entry carries service and version. Components derive a child with
// Component, and the daemon adds the device address with ForDevice so logs
// from several daemons on one host can be told apart:
//
//	log := logging.New(cfg.Logging, version).ForDevice(cfg.Device.Host, cfg.Device.Port)
//	pollLog := log.Component("poller")
//	pollLog.Warn("poll cycle failed", "kind", "unreachable", "consecutive", 2)
//
// Settings (logging section of seestar.yaml):
//
//	level:  debug | info | warn | error
//	format: json | text
//	output: stdout | stderr | discard
//
// Never log the MQTT password or the InfluxDB token.
package logging
