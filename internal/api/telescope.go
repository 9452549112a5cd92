package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/state"
)

// Health statuses reported by /health.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// HealthResponse is the /health body. The endpoint always answers 200 while
// the process is alive; Status says whether the device side is usable.
type HealthResponse struct {
	Status             string  `json:"status"`
	Reason             string  `json:"reason,omitempty"`
	Version            string  `json:"version"`
	UptimeSeconds      int64   `json:"uptime_seconds"`
	DeviceConnected    bool    `json:"device_connected"`
	PollerHealthy      bool    `json:"poller_healthy"`
	SnapshotVersion    uint64  `json:"snapshot_version"`
	SnapshotAgeSeconds float64 `json:"snapshot_age_seconds,omitempty"`
	MQTTConnected      *bool   `json:"mqtt_connected,omitempty"`
}

// StatusResponse is the /status body.
type StatusResponse struct {
	Current  state.Snapshot  `json:"current"`
	Previous *state.Snapshot `json:"previous,omitempty"`
}

// handleHealth reports liveness, device connectivity and poller health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Current()
	resp := HealthResponse{
		Status:          healthOK,
		Version:         s.version,
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
		DeviceConnected: snap.Connected,
		PollerHealthy:   s.poller == nil || s.poller.Healthy(),
		SnapshotVersion: snap.Version,
	}
	if !snap.CapturedAt.IsZero() {
		resp.SnapshotAgeSeconds = time.Since(snap.CapturedAt).Seconds()
	}
	if s.mqtt != nil {
		connected := s.mqtt.IsConnected()
		resp.MQTTConnected = &connected
	}

	switch {
	case !resp.PollerHealthy:
		resp.Status, resp.Reason = healthDegraded, "poller failing"
	case snap.Version == 0:
		resp.Status, resp.Reason = healthDegraded, "no device state yet"
	case !snap.Connected:
		resp.Status, resp.Reason = healthDegraded, "device disconnected"
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the current snapshot.
//
// Query parameters:
//   - previous: when true, also return the snapshot the current one replaced
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Current: s.store.Current()}

	if v := r.URL.Query().Get("previous"); v != "" {
		want, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "previous must be a boolean")
			return
		}
		if want {
			if prev, ok := s.store.Previous(); ok {
				resp.Previous = &prev
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
