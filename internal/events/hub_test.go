package events

import (
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/vocab-recognizer/internal/session"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishDelivers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Publish("s-1", session.Hypothesis{
		Kind:         session.KindFinal,
		Text:         "请把温度调到三十五度",
		MatchedTerms: []string{"三十五度"},
		Utterance:    1,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var got struct {
		SessionID    string   `json:"session_id"`
		Kind         string   `json:"kind"`
		Text         string   `json:"text"`
		MatchedTerms []string `json:"matched_terms"`
		Utterance    int      `json:"utterance"`
	}
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if got.SessionID != "s-1" || got.Kind != "final" || got.Utterance != 1 {
		t.Errorf("Unexpected event %+v", got)
	}
	if got.Text != "请把温度调到三十五度" {
		t.Errorf("Expected text preserved, got %q", got.Text)
	}
	if !reflect.DeepEqual(got.MatchedTerms, []string{"三十五度"}) {
		t.Errorf("Expected matched terms [三十五度], got %v", got.MatchedTerms)
	}
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Publish("s-1", session.Hypothesis{Kind: session.KindPartial, Text: "开"})

	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv.URL)
	waitForClients(t, hub, 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients after close, got %d", hub.ClientCount())
	}

	late := dial(t, srv.URL)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("Expected closed hub to refuse new subscribers")
	}
}
