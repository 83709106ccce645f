// Package live はラウンドの更新をWebSocketで購読者へ配信する。
package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/wordcloud/internal/metrics"
)

// 配信メッセージの種別。
const (
	TypeWordCloud   = "wordcloud"
	TypeLeaderboard = "leaderboard"
	TypeRoundEnded  = "round_ended"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

// Message は購読者へ送るメッセージ。
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type client struct {
	roundID string
	conn    *websocket.Conn
	send    chan []byte
}

// Hub はラウンドごとの購読者を管理する。
// 送信バッファが溢れた購読者は切断する。
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]map[*client]struct{}
	total    int
	upgrader websocket.Upgrader
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewHub はHubを生成する。allowedOriginsが空の場合は全オリジンからの接続を許可する。
func NewHub(allowedOrigins []string, collector metrics.MetricsCollector, logger *slog.Logger) *Hub {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || origins[origin]
		},
	}
	return &Hub{
		rooms:    make(map[string]map[*client]struct{}),
		upgrader: upgrader,
		metrics:  collector,
		logger:   logger,
	}
}

// Serve はHTTP接続をWebSocketにアップグレードし、roundIDの更新を購読させる。
// 接続が閉じるまで戻らない。
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roundID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade側でエラーレスポンスを書き込み済み
		h.logger.Warn("WebSocketへのアップグレードに失敗しました",
			slog.String("round_id", roundID),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{
		roundID: roundID,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
	}
	h.add(c)

	go h.writePump(c)
	h.readPump(c)
}

// Publish はラウンドの購読者全員にメッセージを送る。
func (h *Hub) Publish(roundID, msgType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("配信メッセージの生成に失敗しました",
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[roundID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("送信が滞留したため購読を切断します", slog.String("round_id", roundID))
			h.removeLocked(c)
		}
	}
}

// Subscribers はラウンドの購読者数を返す。
func (h *Hub) Subscribers(roundID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roundID])
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.roundID] == nil {
		h.rooms[c.roundID] = make(map[*client]struct{})
	}
	h.rooms[c.roundID][c] = struct{}{}
	h.total++
	h.metrics.SetLiveConnections(h.total)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked は購読を解除して送信チャネルを閉じる。複数回呼ばれても一度だけ閉じる。
func (h *Hub) removeLocked(c *client) {
	room, ok := h.rooms[c.roundID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.roundID)
	}
	close(c.send)
	h.total--
	h.metrics.SetLiveConnections(h.total)
}

// readPump は購読者からの制御フレームを処理する。受信データは使わない。
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocketの読み取りを終了します",
					slog.String("round_id", c.roundID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
