package relay

import (
	"encoding/json"
	"time"
)

// healthLoop publishes the health report immediately and then on every tick.
func (r *Relay) healthLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.HealthInterval)
	defer ticker.Stop()

	r.PublishHealth()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.PublishHealth()
		}
	}
}

// PublishHealth publishes the current health report now.
func (r *Relay) PublishHealth() {
	status, reason := r.determineStatus()
	r.publishHealth(status, reason)
}

// Health builds the current health report without publishing it.
func (r *Relay) Health() HealthMessage {
	status, reason := r.determineStatus()
	return r.healthMessage(status, reason)
}

// determineStatus evaluates the relay's view of the core. Device and poller
// problems degrade the report; they never stop it being published.
func (r *Relay) determineStatus() (HealthStatus, string) {
	if !r.client.IsConnected() {
		return HealthDegraded, "mqtt disconnected"
	}
	if r.opts.PollerHealthy != nil && !r.opts.PollerHealthy() {
		return HealthDegraded, "poller failing"
	}
	if r.opts.State != nil {
		snap := r.opts.State.Current()
		if snap.Version == 0 {
			return HealthDegraded, "no device state yet"
		}
		if !snap.Connected {
			return HealthDegraded, "device disconnected"
		}
	}
	return HealthHealthy, ""
}

func (r *Relay) healthMessage(status HealthStatus, reason string) HealthMessage {
	now := r.opts.Now()
	msg := HealthMessage{
		Status:        status,
		Reason:        reason,
		Version:       r.opts.Version,
		PollerHealthy: r.opts.PollerHealthy == nil || r.opts.PollerHealthy(),
		UptimeSeconds: int64(now.Sub(r.started).Seconds()),
		Timestamp:     now.UTC(),
	}
	if r.opts.State != nil {
		snap := r.opts.State.Current()
		msg.DeviceConnected = snap.Connected
		msg.SnapshotVersion = snap.Version
		if !snap.CapturedAt.IsZero() {
			msg.SnapshotAge = now.Sub(snap.CapturedAt).Seconds()
		}
	}

	r.mu.Lock()
	msg.PendingResults = len(r.pending)
	r.mu.Unlock()
	return msg
}

func (r *Relay) publishHealth(status HealthStatus, reason string) {
	payload, err := json.Marshal(r.healthMessage(status, reason))
	if err != nil {
		r.logger.Error("encoding health report", "error", err)
		return
	}
	r.publish(r.opts.Topics.Health(), payload, true)
}
