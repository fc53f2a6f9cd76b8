package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daybook-app/daybook/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 4
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the CLI client is not a browser, origin checks add nothing here
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes full per-owner snapshots to connected watch clients whenever a
// mutation lands. Slow consumers get stale frames dropped, never a backlog.
type Hub struct {
	entries entryAPI
	log     logging.Logger

	mu    sync.Mutex
	conns map[string]map[*wsClient]struct{}
}

func newHub(entries entryAPI, log logging.Logger) *Hub {
	return &Hub{
		entries: entries,
		log:     log.With("module", "watch"),
		conns:   make(map[string]map[*wsClient]struct{}),
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EntriesChanged implements services.Notifier.
func (h *Hub) EntriesChanged(ownerID string) {
	go h.broadcast(ownerID)
}

func (h *Hub) broadcast(ownerID string) {
	h.mu.Lock()
	subscribers := len(h.conns[ownerID])
	h.mu.Unlock()
	if subscribers == 0 {
		return
	}

	frame, err := h.snapshot(ownerID)
	if err != nil {
		h.log.Error(context.Background(), "failed to build watch snapshot", "owner", ownerID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[ownerID] {
		select {
		case c.send <- frame:
		default:
			// consumer too slow; it will catch up on the next frame
		}
	}
}

// snapshot builds the wire frame holding the owner's full record set.
func (h *Hub) snapshot(ownerID string) ([]byte, error) {
	list, err := h.entries.Query(context.Background(), ownerID, false)
	if err != nil {
		return nil, err
	}
	docs := make([]entryDoc, 0, len(list))
	for i := range list {
		docs = append(docs, toDoc(&list[i]))
	}
	return json.Marshal(map[string]any{"entries": docs})
}

func (h *Hub) register(ownerID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[ownerID] == nil {
		h.conns[ownerID] = make(map[*wsClient]struct{})
	}
	h.conns[ownerID][c] = struct{}{}
}

func (h *Hub) unregister(ownerID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[ownerID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, ownerID)
		}
	}
}

// serveWatch upgrades the request and streams snapshots until the client
// disconnects.
func (h *Hub) serveWatch(w http.ResponseWriter, r *http.Request) {
	ownerID := userID(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register(ownerID, c)

	// initial frame so the client starts from the current state
	if frame, err := h.snapshot(ownerID); err == nil {
		c.send <- frame
	}

	go h.writePump(ownerID, c)
	h.readPump(ownerID, c)
}

// readPump discards inbound messages and detects disconnects.
func (h *Hub) readPump(ownerID string, c *wsClient) {
	defer func() {
		h.unregister(ownerID, c)
		close(c.send)
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(ownerID string, c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
