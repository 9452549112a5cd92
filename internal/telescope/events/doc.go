// Package events broadcasts state store changes to any number of
// independent consumers: the MQTT relay, WebSocket clients, log viewers.
//
// Delivery is "at least the latest state". Each subscription has a small
// bounded queue and a full queue drops its oldest event, so a stalled
// consumer costs memory proportional to the queue size and never slows the
// poller or any other consumer.
//
// Usage:
//
//	sub := bus.Subscribe()
//	defer bus.Unsubscribe(sub)
//	for ev := range sub.C() {
//	    render(ev.Snapshot, ev.Changed)
//	}
package events
