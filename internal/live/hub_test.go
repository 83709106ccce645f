package live

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/wordcloud/internal/metrics"
)

type gaugeRecorder struct {
	metrics.NopCollector
	mu   sync.Mutex
	last int
}

func (g *gaugeRecorder) SetLiveConnections(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = n
}

func (g *gaugeRecorder) value() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func newTestHub(t *testing.T) (*Hub, *gaugeRecorder, *httptest.Server) {
	t.Helper()
	var buf bytes.Buffer
	gauge := &gaugeRecorder{}
	hub := NewHub(nil, gauge, slog.New(slog.NewJSONHandler(&buf, nil)))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("round"))
	}))
	t.Cleanup(server.Close)
	return hub, gauge, server
}

func dial(t *testing.T, server *httptest.Server, roundID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?round=" + roundID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_PublishReachesOnlyRoundSubscribers(t *testing.T) {
	hub, gauge, server := newTestHub(t)

	a := dial(t, server, "r1")
	b := dial(t, server, "r2")
	waitFor(t, func() bool { return hub.Subscribers("r1") == 1 && hub.Subscribers("r2") == 1 })
	if gauge.value() != 2 {
		t.Errorf("expected 2 live connections, got %d", gauge.value())
	}

	hub.Publish("r1", TypeWordCloud, map[string]int{"blue": 2})

	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message: %v", err)
	}
	if msg.Type != TypeWordCloud || msg.Payload["blue"] != 2 {
		t.Errorf("unexpected message: %s", data)
	}

	_ = b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Error("subscriber of another round must not receive the message")
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, gauge, server := newTestHub(t)

	conn := dial(t, server, "r1")
	waitFor(t, func() bool { return hub.Subscribers("r1") == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Subscribers("r1") == 0 })
	waitFor(t, func() bool { return gauge.value() == 0 })

	// 購読者がいないラウンドへの配信は何もしない
	hub.Publish("r1", TypeRoundEnded, nil)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub(nil, nil, slog.New(slog.NewJSONHandler(&buf, nil)))

	c := &client{roundID: "r1", send: make(chan []byte, 1)}
	hub.add(c)

	hub.Publish("r1", TypeLeaderboard, 1)
	hub.Publish("r1", TypeLeaderboard, 2)

	if hub.Subscribers("r1") != 0 {
		t.Error("expected slow client to be removed")
	}
	// 残っていた1件を読んだ後にチャネルが閉じていること
	<-c.send
	if _, ok := <-c.send; ok {
		t.Error("expected send channel to be closed")
	}
	if !strings.Contains(buf.String(), "購読を切断します") {
		t.Errorf("expected drop log, got %s", buf.String())
	}

	// 二重解除しても安全
	hub.remove(c)
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub([]string{"https://wordcloud.example.com"}, nil, slog.New(slog.NewJSONHandler(&buf, nil)))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "r1")
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}
}
