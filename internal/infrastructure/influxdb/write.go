package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRequests = "seestar_requests"
	MeasurementPolls    = "seestar_polls"
	MeasurementCommands = "seestar_commands"
)

// RequestMetric describes one logical device call.
type RequestMetric struct {
	Endpoint string
	Outcome  string // ok, unreachable, transient, rejected, protocol
	Attempts int
	Cached   bool
	Duration time.Duration
}

// PollMetric describes one poll cycle.
type PollMetric struct {
	Outcome             string
	Published           bool
	Connected           bool
	ConsecutiveFailures int
	Duration            time.Duration
}

// CommandMetric describes one resolved command.
type CommandMetric struct {
	Kind     string
	Status   string
	Source   string
	Duration time.Duration
}

// WriteRequest records a device call. Tags are the endpoint and outcome;
// cache hits are tagged so latency percentiles can exclude them.
//
// Example:
//
//	sink.WriteRequest(influxdb.RequestMetric{
//	    Endpoint: "method_sync/scope_get_equ_coord",
//	    Outcome:  "ok",
//	    Attempts: 1,
//	    Duration: 42 * time.Millisecond,
//	})
func (c *Client) WriteRequest(m RequestMetric) {
	c.write(MeasurementRequests,
		map[string]string{
			"endpoint": m.Endpoint,
			"outcome":  m.Outcome,
			"cached":   boolTag(m.Cached),
		},
		map[string]any{
			"attempts":    m.Attempts,
			"duration_ms": durationMS(m.Duration),
		},
		time.Now(),
	)
}

// WritePoll records a poll cycle.
func (c *Client) WritePoll(m PollMetric) {
	c.write(MeasurementPolls,
		map[string]string{"outcome": m.Outcome},
		map[string]any{
			"published":            m.Published,
			"connected":            m.Connected,
			"consecutive_failures": m.ConsecutiveFailures,
			"duration_ms":          durationMS(m.Duration),
		},
		time.Now(),
	)
}

// WriteCommand records a resolved command.
func (c *Client) WriteCommand(m CommandMetric) {
	tags := map[string]string{
		"kind":   m.Kind,
		"status": m.Status,
	}
	if m.Source != "" {
		tags["source"] = m.Source
	}
	c.write(MeasurementCommands, tags,
		map[string]any{"duration_ms": durationMS(m.Duration)},
		time.Now(),
	)
}

// WritePoint writes a custom point with the given timestamp.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	c.write(measurement, tags, fields, ts)
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
	c.written.Add(1)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
