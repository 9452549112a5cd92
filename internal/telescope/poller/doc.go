// Package poller runs the background loop that keeps the state store in
// step with the device.
//
// Every interval the poller asks the client for position, view state and
// device state, normalises them into one state.Snapshot (hours and degrees,
// stage names mapped to slewing/exposing/auto-focusing flags, the
// light-pollution switch mapped to a filter slot) and publishes it under the
// next version. A snapshot is published every successful cycle, even when
// nothing changed, so commands waiting on the store always have a fresh
// sample to evaluate.
//
// Connectivity is debounced: only FailureThreshold consecutive unreachable
// or transient cycles turn the store's snapshot into a stale, disconnected
// one, and that happens once per outage.
package poller
