// Package state holds the canonical, versioned snapshot of telescope state.
//
// There is exactly one Store per device. The poller is its only writer; the
// command coordinator and the event bus observe it. Versions are strictly
// increasing, so every observer sees a monotonic sequence even if a late
// write from an overlapping poll cycle arrives out of order.
package state
