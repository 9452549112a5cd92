package influxdb_test

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/seestar-core/internal/infrastructure/config"
	"github.com/nerrad567/seestar-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu    sync.Mutex
	lines []string
	query string
}

func newFakeInflux(t *testing.T, healthy bool) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping", "/health":
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			var body io.Reader = r.Body
			if r.Header.Get("Content-Encoding") == "gzip" {
				gz, err := gzip.NewReader(r.Body)
				if err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				body = gz
			}
			raw, _ := io.ReadAll(body)
			f.mu.Lock()
			f.query = r.URL.RawQuery
			for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

// waitLines waits for at least n lines to arrive.
func (f *fakeInflux) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.lines) >= n {
			out := append([]string(nil), f.lines...)
			f.mu.Unlock()
			return out
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("received fewer than %d lines", n)
	return nil
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "seestar-dev-token",
		Org:           "seestar",
		Bucket:        "ops",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	c, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestConnect(t *testing.T) {
	f := newFakeInflux(t, true)
	c := connect(t, f)

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeInflux(t, false)

	if _, err := influxdb.Connect(testConfig(f.URL)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t, true)
	url := f.URL
	f.Close()

	if _, err := influxdb.Connect(testConfig(url)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteMetrics(t *testing.T) {
	f := newFakeInflux(t, true)
	c := connect(t, f)

	c.WriteRequest(influxdb.RequestMetric{
		Endpoint: "method_sync/get_view_state",
		Outcome:  "ok",
		Attempts: 2,
		Duration: 40 * time.Millisecond,
	})
	c.WritePoll(influxdb.PollMetric{Outcome: "unreachable", ConsecutiveFailures: 3})
	c.WriteCommand(influxdb.CommandMetric{Kind: "goto", Status: "succeeded", Source: "api", Duration: 12 * time.Second})
	c.Flush()

	lines := f.waitLines(t, 3)

	wants := []string{
		"seestar_requests,cached=false,endpoint=method_sync/get_view_state,outcome=ok attempts=2i,duration_ms=40",
		"seestar_polls,outcome=unreachable ",
		"seestar_commands,kind=goto,source=api,status=succeeded duration_ms=12000",
	}
	for i, want := range wants {
		if !strings.HasPrefix(lines[i], want) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], want)
		}
	}
	if !strings.Contains(lines[1], "consecutive_failures=3i") {
		t.Errorf("poll line = %q, want consecutive_failures=3i", lines[1])
	}

	f.mu.Lock()
	query := f.query
	f.mu.Unlock()
	if !strings.Contains(query, "bucket=ops") || !strings.Contains(query, "org=seestar") {
		t.Errorf("write query = %q, want org and bucket", query)
	}

	if got := c.Stats().Points; got != 3 {
		t.Errorf("Stats().Points = %d, want 3", got)
	}
}

func TestWriteAfterClose(t *testing.T) {
	f := newFakeInflux(t, true)
	c, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	c.WriteCommand(influxdb.CommandMetric{Kind: "sync", Status: "failed"})
	c.Flush()

	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if got := c.Stats().Points; got != 0 {
		t.Errorf("Stats().Points = %d after Close, want 0", got)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *influxdb.Client

	c.WriteRequest(influxdb.RequestMetric{Endpoint: "x"})
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if c.Stats() != (influxdb.Stats{}) {
		t.Errorf("Stats() on nil client = %+v, want zero", c.Stats())
	}
}
