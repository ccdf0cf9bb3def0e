package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/readtrail/internal/protocol"
)

func startServer(t *testing.T) (*Hub, string) {
	t.Helper()
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(NewHandler(h, DefaultOptions(), nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-h.Done()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	frame, _ := json.Marshal(protocol.Envelope{Event: event, Data: raw})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

// Reads frames until one named event arrives
func readUntil(t *testing.T, conn *websocket.Conn, event string) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Waiting for %s: %v", event, err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("Invalid frame %q: %v", frame, err)
		}
		if env.Event == event {
			return env
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	_, url := startServer(t)

	a := dial(t, url)
	writeEvent(t, a, protocol.EventJoinRoom, "dog")
	color := readUntil(t, a, protocol.EventUserColor)
	if !strings.HasPrefix(string(color.Data), `"#`) {
		t.Errorf("Expected a color string, got %s", color.Data)
	}
	readUntil(t, a, protocol.EventSavedSelectedPaths)

	b := dial(t, url)
	writeEvent(t, b, protocol.EventJoinRoom, "dog")
	readUntil(t, b, protocol.EventSavedSelectedPaths)

	joined := readUntil(t, a, protocol.EventUserJoined)
	var p struct {
		ID string `json:"id"`
	}
	json.Unmarshal(joined.Data, &p)
	if p.ID == "" {
		t.Fatal("Expected joined presence id")
	}

	// malformed frames are dropped without closing the connection
	a.WriteMessage(websocket.TextMessage, []byte(`{"event":"move","data":{"line":1}}`))
	a.WriteMessage(websocket.TextMessage, []byte(`not json`))

	writeEvent(t, a, protocol.EventMove, map[string]int{"wordIndex": 5, "line": 0, "positionInLine": 5})
	moved := readUntil(t, b, protocol.EventUserMoved)
	var m protocol.UserMoved
	json.Unmarshal(moved.Data, &m)
	if m.Position != 5 {
		t.Errorf("Expected position 5, got %d", m.Position)
	}

	b.Close()
	left := readUntil(t, a, protocol.EventUserLeft)
	if string(left.Data) != `"`+p.ID+`"` {
		t.Errorf("Expected user-left for %s, got %s", p.ID, left.Data)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"wildcard", []string{"*"}, "https://evil.example", "app.example", true},
		{"listed", []string{"https://reader.example/"}, "https://reader.example", "api.example", true},
		{"same host", nil, "http://app.example", "app.example", true},
		{"no origin header", []string{"https://reader.example"}, "", "api.example", true},
		{"rejected", []string{"https://reader.example"}, "https://evil.example", "api.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{SendBuffer: 8}.withDefaults()
	if opts.SendBuffer != 8 {
		t.Errorf("Explicit SendBuffer overwritten: %d", opts.SendBuffer)
	}
	if opts.PongWait != defaultPongWait || opts.WriteWait != defaultWriteWait {
		t.Errorf("Expected default waits, got %+v", opts)
	}
	if opts.pingPeriod() >= opts.PongWait {
		t.Error("Ping period must be shorter than pong wait")
	}
}
