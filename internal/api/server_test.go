package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mzagorski/onewired/internal/automation"
	"github.com/mzagorski/onewired/internal/device"
	"github.com/mzagorski/onewired/internal/infrastructure/config"
	"github.com/mzagorski/onewired/internal/infrastructure/logging"
	"github.com/mzagorski/onewired/internal/onewire"
	"github.com/mzagorski/onewired/internal/store"
)

// ─── Fixture ────────────────────────────────────────────────────────────────

type apiFixture struct {
	server  *Server
	handler http.Handler
	relays  *device.RelayDevices
	events  chan store.Event
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	sensors := device.NewSensorDevices()
	relays := device.NewRelayDevices()

	if err := sensors.AddKind(1, device.KindPIRTrigger); err != nil {
		t.Fatalf("AddKind() error = %v", err)
	}
	if err := sensors.AddSensor(&device.Sensor{
		ID:     1,
		Name:   "hall-pir",
		KindID: 1,
		Board:  device.BoardID{Family: 0x3A, Address: 0x10},
		Bit:    device.PIOABit,
		RelayIDs: []int{
			1,
		},
	}); err != nil {
		t.Fatalf("AddSensor() error = %v", err)
	}

	relay := &device.Relay{
		ID:   1,
		Name: "hall-light",
		Bit:  0,
		Conf: device.ActuatorConfig{PIRHold: 2 * time.Minute, SwitchHold: time.Hour},
	}
	if err := relays.AddRelay(relay, device.BoardID{Family: 0x29, Address: 0x20}); err != nil {
		t.Fatalf("AddRelay() error = %v", err)
	}
	if err := relays.AddYeelight(&device.Yeelight{
		ID:   2,
		Name: "desk-lamp",
		Addr: "10.0.0.20",
		Conf: device.ActuatorConfig{PIRHold: 2 * time.Minute, SwitchHold: time.Hour},
	}); err != nil {
		t.Fatalf("AddYeelight() error = %v", err)
	}

	engine := automation.New(automation.Config{
		Sensors: sensors,
		Relays:  relays,
		Bus:     onewire.NewFakeBus(),
	})

	events := make(chan store.Event, 4)
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:  logger,
		Sensors: sensors,
		Relays:  relays,
		Engine:  engine,
		Events:  events,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.hub = NewHub(logger)

	return &apiFixture{
		server:  srv,
		handler: srv.buildRouter(),
		relays:  relays,
		events:  events,
	}
}

func (f *apiFixture) request(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

// ─── Read endpoints ─────────────────────────────────────────────────────────

func TestHandleHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.request(t, http.MethodGet, "/api/v1/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v, want ok/test", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}
}

func TestHandleStatus(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.request(t, http.MethodGet, "/api/v1/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	regs, ok := body["registries"].(map[string]any)
	if !ok {
		t.Fatalf("registries missing from %v", body)
	}
	if regs["sensors"].(float64) != 1 || regs["relays"].(float64) != 1 || regs["lights"].(float64) != 1 {
		t.Errorf("registries = %v, want 1 sensor, 1 relay, 1 light", regs)
	}
	if _, ok := body["engine"]; !ok {
		t.Error("engine stats missing")
	}
}

func TestHandleListEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		path string
		key  string
	}{
		{"/api/v1/sensors", "sensors"},
		{"/api/v1/relays", "relays"},
		{"/api/v1/lights", "lights"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			rec := f.request(t, http.MethodGet, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			body := decodeBody(t, rec)
			list, ok := body[tt.key].([]any)
			if !ok || len(list) != 1 {
				t.Errorf("%s = %v, want one entry", tt.key, body[tt.key])
			}
		})
	}
}

// ─── Toggle endpoints ───────────────────────────────────────────────────────

func TestHandleToggleRelay(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/relays/1/toggle")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	f.relays.Lock()
	r, _ := f.relays.RelayLocked(1)
	energized := r.IsEnergized()
	override := r.Auto.OverrideMode
	f.relays.Unlock()

	if !energized || !override {
		t.Error("toggle should energize the relay under override")
	}
}

func TestHandleToggleRelay_Debounced(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.request(t, http.MethodPost, "/api/v1/relays/1/toggle"); rec.Code != http.StatusOK {
		t.Fatalf("first toggle status = %d, want 200", rec.Code)
	}
	rec := f.request(t, http.MethodPost, "/api/v1/relays/1/toggle")
	if rec.Code != http.StatusConflict {
		t.Errorf("rapid second toggle status = %d, want 409", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != ErrCodeConflict {
		t.Errorf("error code = %v, want %s", body["code"], ErrCodeConflict)
	}
}

func TestHandleToggle_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.request(t, http.MethodPost, "/api/v1/relays/42/toggle"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown relay status = %d, want 404", rec.Code)
	}
	if rec := f.request(t, http.MethodPost, "/api/v1/lights/42/toggle"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown light status = %d, want 404", rec.Code)
	}
}

func TestHandleToggle_BadID(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.request(t, http.MethodPost, "/api/v1/relays/abc/toggle")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleToggleLight(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.request(t, http.MethodPost, "/api/v1/lights/2/toggle")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	f.relays.Lock()
	y, _ := f.relays.LightLocked(2)
	powered := y.PoweredOn
	f.relays.Unlock()
	if !powered {
		t.Error("light should be powered on after toggle")
	}
}

// ─── Reload ─────────────────────────────────────────────────────────────────

func TestHandleReload_QueuesEvent(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/reload")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case ev := <-f.events:
		if ev.Kind != store.ReloadDevices {
			t.Errorf("event kind = %s, want reload_devices", ev.Kind)
		}
	default:
		t.Fatal("reload event should be queued")
	}
}

func TestHandleReload_FullQueue(t *testing.T) {
	f := newAPIFixture(t)

	// Fill the queue so the handler's non-blocking send fails
	for len(f.events) < cap(f.events) {
		f.events <- store.Event{Kind: store.IncrementRelayCounter, ID: 1}
	}
	rec := f.request(t, http.MethodPost, "/api/v1/reload")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 on full queue", rec.Code)
	}
}

// ─── Error envelope ─────────────────────────────────────────────────────────

func TestErrorEnvelopeShape(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.request(t, http.MethodPost, "/api/v1/relays/42/toggle")

	body := decodeBody(t, rec)
	for _, key := range []string{"status", "code", "message"} {
		if _, ok := body[key]; !ok {
			t.Errorf("error envelope missing %q: %v", key, body)
		}
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %s, want application/json", rec.Header().Get("Content-Type"))
	}
}
