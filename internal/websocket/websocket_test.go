package websocket_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"

	"mrp/internal/testutil"
	"mrp/internal/websocket"
)

func dial(t *testing.T, hub *websocket.Hub) *ws.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestBroadcastChange(t *testing.T) {
	hub := websocket.NewHub(testutil.Logger())
	conn := dial(t, hub)

	tests := []struct {
		resource, action, want string
	}{
		{"part", "create", "part_created"},
		{"entry", "clock", "entry_clocked"},
		{"vendor", "merge", "vendor_merged"},
		{"part", "import", "part_imported"},
	}
	for _, tt := range tests {
		hub.BroadcastChange(tt.resource, tt.action, 7)
		var evt websocket.Event
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("read: %v", err)
		}
		if evt.Type != tt.want || evt.Action != tt.action || evt.ID != float64(7) {
			t.Errorf("Expected %s, got %+v", tt.want, evt)
		}
	}
}

func TestClientRemovedOnClose(t *testing.T) {
	hub := websocket.NewHub(testutil.Logger())
	conn := dial(t, hub)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client still registered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastDropsClientThatStopsReading(t *testing.T) {
	hub := websocket.NewHub(testutil.Logger())
	dial(t, hub) // never read from

	big := websocket.Event{Type: "part_updated", ID: strings.Repeat("x", 64<<10), Action: "update"}
	start := time.Now()
	for i := 0; i < 5000 && hub.ClientCount() > 0; i++ {
		hub.Broadcast(big)
	}
	if hub.ClientCount() != 0 {
		t.Fatal("Expected the stalled client to be dropped")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Broadcast waited on the stalled client for %v", elapsed)
	}

	conn := dial(t, hub)
	hub.BroadcastChange("part", "create", 1)
	var evt websocket.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Type != "part_created" {
		t.Errorf("Unexpected event %+v", evt)
	}
}

func TestNilHubBroadcast(t *testing.T) {
	var hub *websocket.Hub
	hub.Broadcast(websocket.Event{Type: "noop"})
}
