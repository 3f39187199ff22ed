package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mzagorski/onewired/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "onewired-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}
}

// ─── Topic builders ───────────────────────────────────────────────────────────

func TestTopics_ActuatorState(t *testing.T) {
	got := Topics{}.ActuatorState(KindRelay, 3)
	if got != "onewired/state/relay/3" {
		t.Errorf("ActuatorState = %q, want onewired/state/relay/3", got)
	}
}

func TestTopics_ActuatorCommand(t *testing.T) {
	got := Topics{}.ActuatorCommand(KindLight, 1)
	if got != "onewired/command/light/1" {
		t.Errorf("ActuatorCommand = %q, want onewired/command/light/1", got)
	}
}

func TestTopics_SystemStatus(t *testing.T) {
	got := Topics{}.SystemStatus()
	if got != "onewired/system/status" {
		t.Errorf("SystemStatus = %q, want onewired/system/status", got)
	}
}

func TestTopics_Wildcards(t *testing.T) {
	if got := (Topics{}).AllCommands(); got != "onewired/command/+/+" {
		t.Errorf("AllCommands = %q", got)
	}
	if got := (Topics{}).AllStates(); got != "onewired/state/+/+" {
		t.Errorf("AllStates = %q", got)
	}
	if got := (Topics{}).AllTopics(); got != "onewired/#" {
		t.Errorf("AllTopics = %q", got)
	}
}

// ─── Client options ───────────────────────────────────────────────────────────

func TestBuildClientOptions_PlainBroker(t *testing.T) {
	opts := buildClientOptions(testConfig())

	servers := opts.Servers
	if len(servers) != 1 {
		t.Fatalf("expected 1 broker URL, got %d", len(servers))
	}
	if servers[0].Scheme != "tcp" {
		t.Errorf("scheme = %q, want tcp", servers[0].Scheme)
	}
	if servers[0].Host != "localhost:1883" {
		t.Errorf("host = %q, want localhost:1883", servers[0].Host)
	}
	if opts.ClientID != "onewired-test" {
		t.Errorf("client ID = %q", opts.ClientID)
	}
}

func TestBuildClientOptions_TLSUsesSSLScheme(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Error("expected TLS config to be set")
	}
}

func TestBuildClientOptions_Credentials(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "daemon"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if opts.Username != "daemon" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q / %q", opts.Username, opts.Password)
	}
}

// ─── Status payloads ──────────────────────────────────────────────────────────

func TestStatusPayloads_AreValidJSON(t *testing.T) {
	for name, payload := range map[string]string{
		"online":  buildOnlinePayload("onewired-test"),
		"offline": buildOfflinePayload("onewired-test"),
	} {
		var decoded map[string]string
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			t.Errorf("%s payload is not valid JSON: %v", name, err)
			continue
		}
		if decoded["status"] != name {
			t.Errorf("%s payload status = %q", name, decoded["status"])
		}
		if decoded["client_id"] != "onewired-test" {
			t.Errorf("%s payload client_id = %q", name, decoded["client_id"])
		}
	}

	if !strings.Contains(buildOfflinePayload("x"), "graceful_shutdown") {
		t.Error("offline payload should carry graceful_shutdown reason")
	}
}

// ─── Validation on disconnected client ────────────────────────────────────────

func TestPublish_ValidationErrors(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("onewired/state/relay/1", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS: got %v, want ErrInvalidQoS", err)
	}
	if err := c.Publish("onewired/state/relay/1", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: got %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_ValidationErrors(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("onewired/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: got %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("onewired/#", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: got %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("failed subscribes should not be tracked, count = %d", c.SubscriptionCount())
	}
}
