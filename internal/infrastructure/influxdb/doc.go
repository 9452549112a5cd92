// Package influxdb sends Seestar Core's operational metrics to InfluxDB v2.
//
// Only the core's own behaviour is recorded, never device state history:
//
//	seestar_requests   one point per device call (endpoint, outcome, attempts, latency)
//	seestar_polls      one point per poll cycle (outcome, connectivity, latency)
//	seestar_commands   one point per resolved command (kind, status, duration)
//
// # Usage
//
//	sink, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	sink.WriteCommand(influxdb.CommandMetric{Kind: "goto", Status: "succeeded", Duration: d})
//
// Writes are non-blocking and batched according to influxdb.batch_size and
// influxdb.flush_interval. Methods on a disconnected or nil client drop the
// point silently, so callers need no enabled check.
package influxdb
