package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialFeed(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFeedDeliversBroadcastEvents(t *testing.T) {
	f := newFixture(t)
	conn := dialFeed(t, f)

	// Registration races the broadcast; retry until the client is in the set.
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	var evt FeedEvent
	for {
		f.api.Feed().Broadcast(FeedEvent{Type: "pending", Payload: map[string]string{"kind": "added"}})
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if time.Now().After(deadline) {
				t.Fatalf("no feed event before deadline: %v", err)
			}
			continue
		}
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("decode feed event: %v", err)
		}
		break
	}
	if evt.Type != "pending" {
		t.Errorf("unexpected event type %q", evt.Type)
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected broadcast to stamp the event")
	}
}

func TestFeedRejectsDisallowedOrigin(t *testing.T) {
	f := newFixture(t)
	f.api.cfg.AllowedOrigins = []string{"http://operator.local"}

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/events"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("expected upgrade rejection for disallowed origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}
