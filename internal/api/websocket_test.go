package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, f *apiFixture) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(f.handler)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_ReceivesStateBroadcast(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialWS(t, f)

	// Wait for the client to register before broadcasting
	deadline := time.Now().Add(2 * time.Second)
	for f.server.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.server.hub.Broadcast(ChannelStateChanged, map[string]any{
		"kind": "relay", "id": 1, "energized": true,
	})

	//nolint:errcheck // Deadline errors surface as read errors below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}

	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding broadcast: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != ChannelStateChanged {
		t.Errorf("message = %+v, want state-changed event", msg)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok || payload["kind"] != "relay" {
		t.Errorf("payload = %v, want relay state", msg.Payload)
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialWS(t, f)

	ping := WSMessage{Type: WSTypePing, ID: "42"}
	if err := conn.WriteJSON(ping); err != nil {
		t.Fatalf("writing ping: %v", err)
	}

	//nolint:errcheck // Deadline errors surface as read errors below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply WSMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("reading pong: %v", err)
	}
	if reply.Type != WSTypePong || reply.ID != "42" {
		t.Errorf("reply = %+v, want pong with id 42", reply)
	}
}

func TestWebSocket_UnsubscribeStopsBroadcasts(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialWS(t, f)

	deadline := time.Now().Add(2 * time.Second)
	for f.server.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	unsub := WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelStateChanged}},
	}
	if err := conn.WriteJSON(unsub); err != nil {
		t.Fatalf("writing unsubscribe: %v", err)
	}

	// Confirmation response comes back first
	//nolint:errcheck // Deadline errors surface as read errors below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply WSMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("reading unsubscribe response: %v", err)
	}
	if reply.Type != WSTypeResponse {
		t.Fatalf("reply type = %s, want response", reply.Type)
	}

	f.server.hub.Broadcast(ChannelStateChanged, map[string]any{"id": 1})

	//nolint:errcheck // Short deadline is the point of this read
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("unsubscribed client should not receive broadcasts")
	}
}

func TestHub_CloseAllOnShutdown(t *testing.T) {
	f := newAPIFixture(t)
	_ = dialWS(t, f)

	deadline := time.Now().Add(2 * time.Second)
	for f.server.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.server.hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop on cancellation")
	}
	if n := f.server.hub.ClientCount(); n != 0 {
		t.Errorf("clients after shutdown = %d, want 0", n)
	}
}
