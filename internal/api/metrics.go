package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/seestar-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/seestar-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/seestar-core/internal/relay"
	"github.com/nerrad567/seestar-core/internal/telescope/client"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
	"github.com/nerrad567/seestar-core/internal/telescope/events"
	"github.com/nerrad567/seestar-core/internal/telescope/poller"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Store         StoreMetrics     `json:"store"`
	Bus           events.Stats     `json:"bus"`
	Commands      command.Stats    `json:"commands"`
	Client        *client.Stats    `json:"client,omitempty"`
	Poller        *poller.Stats    `json:"poller,omitempty"`
	WebSocket     HubStats         `json:"websocket"`
	MQTT          *mqtt.Stats      `json:"mqtt,omitempty"`
	Relay         *relay.Stats     `json:"relay,omitempty"`
	InfluxDB      *influxdb.Stats  `json:"influxdb,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// StoreMetrics contains state store statistics.
type StoreMetrics struct {
	Version   uint64 `json:"version"`
	Published uint64 `json:"published"`
	Rejected  uint64 `json:"rejected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	published, rejected := s.store.Stats()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Store: StoreMetrics{
			Version:   s.store.Current().Version,
			Published: published,
			Rejected:  rejected,
		},
		Bus:      s.bus.Stats(),
		Commands: s.coordinator.Stats(),
	}
	if s.hub != nil {
		metrics.WebSocket = s.hub.Stats()
	}

	if s.client != nil {
		st := s.client.Stats()
		metrics.Client = &st
	}
	if s.poller != nil {
		st := s.poller.Stats()
		metrics.Poller = &st
	}
	if s.mqtt != nil {
		st := s.mqtt.Stats()
		metrics.MQTT = &st
	}
	if s.relay != nil {
		st := s.relay.Stats()
		metrics.Relay = &st
	}
	if s.influx != nil {
		st := s.influx.Stats()
		metrics.InfluxDB = &st
	}
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
