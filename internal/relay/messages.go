package relay

import (
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/command"
)

// ResultMessage is published on seestar/result/{request_id} once a command
// sent on seestar/command/{request_id} is resolved, or immediately when it
// could not be accepted.
type ResultMessage struct {
	RequestID string          `json:"request_id"`
	CommandID string          `json:"command_id,omitempty"`
	Status    command.Status  `json:"status"`
	Rejected  bool            `json:"rejected,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Result    *command.Result `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HealthStatus is the relay's overall health.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published, retained, on seestar/health.
type HealthMessage struct {
	Status          HealthStatus `json:"status"`
	Reason          string       `json:"reason,omitempty"`
	Version         string       `json:"version,omitempty"`
	DeviceConnected bool         `json:"device_connected"`
	PollerHealthy   bool         `json:"poller_healthy"`
	SnapshotVersion uint64       `json:"snapshot_version"`
	SnapshotAge     float64      `json:"snapshot_age_seconds,omitempty"`
	PendingResults  int          `json:"pending_results"`
	UptimeSeconds   int64        `json:"uptime_seconds"`
	Timestamp       time.Time    `json:"timestamp"`
}
