// Package api implements the HTTP REST API and WebSocket server for Seestar Core.
//
// This package provides:
//   - Read endpoints for the current (and previous) telescope snapshot
//   - Command endpoints that submit intents and report their resolution
//   - The command audit trail, when a database is configured
//   - WebSocket hub for real-time snapshot and command broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a reader of the core, never a writer of state. Snapshots come
// from the state store and reach WebSocket clients through a single event bus
// subscription; commands go through the coordinator like any other caller.
//
// # Channels
//
// WebSocket clients subscribe to "telescope.state" (every published snapshot
// with its changed fields) and "telescope.command" (every resolved command).
//
// # Graceful Degradation
//
// The server runs without MQTT, InfluxDB or a database. The corresponding
// metrics are omitted and /audit answers 503.
package api
