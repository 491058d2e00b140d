package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/render"
	"github.com/hitoshi/dermadash/internal/security"
)

// WebSocketメッセージのアクション名。
const (
	ActionSessionCreated = "session_created"
	ActionFrame          = "frame"
	ActionChartCreated   = "chart_created"
	ActionChartReleased  = "chart_released"
)

const (
	// writeWait は1メッセージの書き込みに許容する時間。
	writeWait = 10 * time.Second
	// pongWait はpongを待つ時間。
	pongWait = 60 * time.Second
	// pingPeriod はpingの送信間隔。pongWaitより短くする。
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize はクライアントから受け付けるメッセージの最大サイズ。
	maxMessageSize = 4096
	// sendBufferSize はクライアントごとの送信キューの長さ。
	sendBufferSize = 64
)

// ErrHubClosed は停止後のHubに描画を要求した場合のエラー。
var ErrHubClosed = errors.New("hub is closed")

// HubMessage はダッシュボードへ配信するメッセージ。
type HubMessage struct {
	Action   string            `json:"action"`
	ClientID string            `json:"clientId,omitempty"`
	Session  string            `json:"session,omitempty"`
	Frame    *render.Frame     `json:"frame,omitempty"`
	Slot     string            `json:"slot,omitempty"`
	ChartID  string            `json:"chartId,omitempty"`
	Spec     *render.ChartSpec `json:"spec,omitempty"`
}

// Hub はWebSocketで接続したダッシュボードへ画面とグラフを配信する描画担当。
// 新しく接続したクライアントには直近の画面と生存中のグラフを再送する。
type Hub struct {
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu        sync.Mutex
	clients   map[*hubClient]struct{}
	lastFrame *HubMessage
	charts    map[string]*HubMessage // slot -> chart_created
	closed    bool
}

// NewHub はHubを生成する。allowedOriginが空の場合はOriginヘッダーのないクライアントのみ受け付ける。
func NewHub(sanitizer security.TextSanitizerService, logger *slog.Logger, allowedOrigin string) *Hub {
	h := &Hub{
		sanitizer: sanitizer,
		logger:    logger,
		clients:   make(map[*hubClient]struct{}),
		charts:    make(map[string]*HubMessage),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || (allowedOrigin != "" && origin == allowedOrigin)
		},
	}
	return h
}

// hubChart はHubが生成したグラフのハンドル。
type hubChart struct {
	hub      *Hub
	slot     string
	id       string
	released bool
}

// Release はグラフの解放をクライアントへ通知する。2回目以降は何もしない。
func (c *hubChart) Release() error {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	if m, ok := h.charts[c.slot]; ok && m.ChartID == c.id {
		delete(h.charts, c.slot)
	}
	h.broadcastLocked(&HubMessage{Action: ActionChartReleased, Slot: c.slot, ChartID: c.id})
	return nil
}

// NewChart はグラフの生成をクライアントへ配信する。
func (h *Hub) NewChart(slot string, spec render.ChartSpec) (render.Chart, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	id := uuid.New().String()
	msg := &HubMessage{Action: ActionChartCreated, Slot: slot, ChartID: id, Spec: &spec}
	h.charts[slot] = msg
	h.broadcastLocked(msg)
	return &hubChart{hub: h, slot: slot, id: id}, nil
}

// ShowFrame は画面をクライアントへ配信する。
func (h *Hub) ShowFrame(frame render.Frame) error {
	clean := h.sanitizeFrame(frame)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	msg := &HubMessage{Action: ActionFrame, Session: frame.Session.String(), Frame: &clean}
	h.lastFrame = msg
	h.broadcastLocked(msg)
	return nil
}

// LiveCharts は解放されていないグラフの数を返す。
func (h *Hub) LiveCharts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.charts)
}

// Clients は接続中のクライアント数を返す。
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close は全クライアントを切断し、以降の描画を拒否する。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// ServeHTTP はWebSocket接続を受け付ける。
// GET /ws
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocketへのアップグレードに失敗しました", slog.String("error", err.Error()))
		return
	}

	c := &hubClient{
		hub:  h,
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	c.enqueue(&HubMessage{Action: ActionSessionCreated, ClientID: c.id}, h.logger)
	if h.lastFrame != nil {
		c.enqueue(h.lastFrame, h.logger)
	}
	for _, m := range h.charts {
		c.enqueue(m, h.logger)
	}
	h.mu.Unlock()

	h.logger.Info("ダッシュボードが接続しました", slog.String("client_id", c.id))

	go c.writePump()
	c.readPump()
}

// broadcastLocked は全クライアントの送信キューへメッセージを積む。
// キューが溢れたクライアントは切断する。
func (h *Hub) broadcastLocked(msg *HubMessage) {
	for c := range h.clients {
		if !c.enqueue(msg, h.logger) {
			h.logger.Warn("送信キューが溢れたためクライアントを切断します", slog.String("client_id", c.id))
			h.removeLocked(c)
		}
	}
}

func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
	h.logger.Info("ダッシュボードが切断しました", slog.String("client_id", c.id))
}

// sanitizeFrame はサーバー由来の文字列を無害化した画面のコピーを返す。
func (h *Hub) sanitizeFrame(f render.Frame) render.Frame {
	f.User = sanitizeUser(h.sanitizer, f.User)
	f.Notice = h.sanitizer.Text(f.Notice)
	if f.Records != nil {
		records := make([]model.DiagnosticRecord, len(f.Records))
		for i, rec := range f.Records {
			records[i] = sanitizeRecord(h.sanitizer, rec)
		}
		f.Records = records
	}
	if f.Record != nil {
		rec := sanitizeRecord(h.sanitizer, *f.Record)
		f.Record = &rec
	}
	return f
}

// hubClient は1つのWebSocket接続。
type hubClient struct {
	hub  *Hub
	id   string
	conn *websocket.Conn
	send chan []byte
}

// enqueue はメッセージを送信キューへ積む。キューが満杯ならfalseを返す。
func (c *hubClient) enqueue(msg *HubMessage, logger *slog.Logger) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("メッセージのエンコードに失敗しました",
			slog.String("action", msg.Action),
			slog.String("error", err.Error()),
		)
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump はクライアントからのメッセージを読み捨て、切断を検知する。
func (c *hubClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump は送信キューのメッセージを書き込み、定期的にpingを送る。
func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
