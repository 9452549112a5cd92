// Package config loads Seestar Core's settings.
//
// A YAML file is read over Default(), SEESTAR_* environment variables are
// applied on top, and Validate rejects values the telescope core cannot run
// with: a zero poll interval, fewer than one attempt, an empty filter list,
// inverted exposure or gain ranges. Durations use Go syntax ("250ms", "3m").
//
// Only the binaries under cmd/ call Load. The telescope packages receive
// plain option structs built from a Config and never read files.
//
// Keep credentials out of the file: set SEESTAR_MQTT_PASSWORD and
// SEESTAR_INFLUXDB_TOKEN instead.
package config
