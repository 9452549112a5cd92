package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/seestar-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "seestar-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

type mockLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (m *mockLogger) Info(string, ...any) {}

func (m *mockLogger) Warn(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) Error(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

// =============================================================================
// Topics
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	custom := Topics{Prefix: "obs/scope1/"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"State", Topics{}.State(), "seestar/state"},
		{"StateChanged", Topics{}.StateChanged(), "seestar/event/state_changed"},
		{"Command", Topics{}.Command("req-1"), "seestar/command/req-1"},
		{"AllCommands", Topics{}.AllCommands(), "seestar/command/+"},
		{"Result", Topics{}.Result("req-1"), "seestar/result/req-1"},
		{"Health", Topics{}.Health(), "seestar/health"},
		{"SystemStatus", Topics{}.SystemStatus(), "seestar/system/status"},
		{"All", Topics{}.All(), "seestar/#"},
		{"custom prefix", custom.State(), "obs/scope1/state"},
		{"custom prefix result", custom.Result("x"), "obs/scope1/result/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_RequestID(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"seestar/command/req-1", "req-1"},
		{"seestar/command/", ""},
		{"seestar/command/a/b", ""},
		{"seestar/result/req-1", ""},
		{"other/command/req-1", ""},
	}

	for _, tt := range tests {
		if got := (Topics{}).RequestID(tt.topic); got != tt.want {
			t.Errorf("RequestID(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "scope", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "seestar-test" {
		t.Errorf("ClientID = %q, want seestar-test", opts.ClientID)
	}
	if opts.Username != "scope" {
		t.Errorf("Username = %q, want scope", opts.Username)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Errorf("AutoReconnect, CleanSession = %v, %v, want true, true", opts.AutoReconnect, opts.CleanSession)
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("TLS scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set with tls enabled")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{}, "seestar-test")

	if !opts.WillEnabled || opts.WillTopic != "seestar/system/status" {
		t.Errorf("will = %v on %q, want enabled on seestar/system/status", opts.WillEnabled, opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained, qos = %v, %d, want true, 1", opts.WillRetained, opts.WillQos)
	}

	var msg StatusMessage
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.Reason != "unexpected_disconnect" || msg.ClientID != "seestar-test" {
		t.Errorf("will payload = %+v", msg)
	}
}

// =============================================================================
// Validation without a broker
// =============================================================================

func newDisconnectedClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

func TestPublishValidation(t *testing.T) {
	c := newDisconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "seestar/state", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "seestar/state", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "seestar/state", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newDisconnectedClient()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"bad qos", "seestar/command/+", 5, noop, ErrInvalidQoS},
		{"nil handler", "seestar/command/+", 1, nil, ErrSubscribeFailed},
		{"not connected", "seestar/command/+", 1, noop, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes, want 0", c.SubscriptionCount())
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

func TestCloseZeroClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() on zero client = true")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Handler dispatch
// =============================================================================

func TestDispatch(t *testing.T) {
	t.Run("error is logged", func(t *testing.T) {
		c := newDisconnectedClient()
		logger := &mockLogger{}
		c.SetLogger(logger)

		c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "seestar/command/x", nil)

		if len(logger.warns) != 1 {
			t.Errorf("warns = %v, want one", logger.warns)
		}
	})

	t.Run("panic is recovered", func(t *testing.T) {
		c := newDisconnectedClient()
		logger := &mockLogger{}
		c.SetLogger(logger)

		c.dispatch(func(string, []byte) error { panic("boom") }, "seestar/command/x", nil)

		if len(logger.errors) != 1 {
			t.Errorf("errors = %v, want one", logger.errors)
		}
	})

	t.Run("no logger", func(t *testing.T) {
		c := newDisconnectedClient()
		c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	})

	t.Run("counts received", func(t *testing.T) {
		c := newDisconnectedClient()
		for range 3 {
			c.dispatch(func(string, []byte) error { return nil }, "t", nil)
		}
		if got := c.Stats().Received; got != 3 {
			t.Errorf("Stats().Received = %d, want 3", got)
		}
	})
}
