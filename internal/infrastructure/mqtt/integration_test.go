//go:build integration

package mqtt

import (
	"errors"
	"testing"
	"time"
)

// These tests need a broker at 127.0.0.1:1883:
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func connectForTest(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	cfg.TopicPrefix = "seestar-test/" + clientID

	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "seestar-int-close"

	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.InitialDelay = 0

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	c := connectForTest(t, "seestar-int-roundtrip")
	topics := c.Topics()

	got := make(chan string, 1)
	err := c.Subscribe(topics.AllCommands(), 1, func(topic string, _ []byte) error {
		got <- topics.RequestID(topic)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription(topics.AllCommands()) {
		t.Error("subscription not tracked")
	}

	if err := c.PublishDefault(topics.Command("req-42"), []byte(`{"kind":"stop_slew"}`), false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case id := <-got:
		if id != "req-42" {
			t.Errorf("request id = %q, want req-42", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command message not received")
	}

	if err := c.Unsubscribe(topics.AllCommands()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}
