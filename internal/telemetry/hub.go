// Package telemetry implements the Telemetry Fan-out (C8): a websocket hub
// that pushes periodic status snapshots to every subscriber of
// /ws/monitoring, plus a per-session log tail for /ws/logs/{session_id}.
package telemetry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liveforge/streamctl/internal/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	clientSendBuf  = 16
)

var clientIDCounter atomic.Uint64

// client is a subscriber of the monitoring hub: a buffered outbound queue
// paired with a live websocket connection.
type client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn) *client {
	return &client{id: clientIDCounter.Add(1), hub: hub, conn: conn, send: make(chan []byte, clientSendBuf)}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
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

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Hub fans a shared stream of already-marshaled JSON documents out to every
// connected monitoring subscriber. Subscribers join and leave freely; a
// subscriber whose send buffer is full is dropped rather than allowed to
// block delivery to the rest.
type Hub struct {
	mu         sync.Mutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
	}
}

// Serve implements suture.Service: it runs the hub's event loop until ctx
// is canceled, at which point every connected client is closed.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// String implements suture.Service.
func (h *Hub) String() string { return "telemetry-hub" }

// Broadcast marshals v to JSON and fans it out to every subscriber. A full
// internal broadcast buffer drops the message rather than blocking the
// caller (the next tick supersedes it anyway).
func (h *Hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.WithComponent("telemetry-hub").Error().Err(err).Msg("marshal snapshot failed")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.WithComponent("telemetry-hub").Warn().Msg("broadcast buffer full, dropping snapshot")
	}
}

// fanOut delivers one already-marshaled message to every client, in a
// deterministic order, dropping (and unregistering) any client whose send
// buffer is already full instead of blocking the rest.
func (h *Hub) fanOut(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ordered := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	for _, c := range ordered {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// join registers a freshly upgraded connection and starts its pumps. It
// blocks until the connection's readPump returns (i.e. until disconnect).
func (h *Hub) join(conn *websocket.Conn) {
	c := newClient(h, conn)
	h.register <- c
	go c.writePump()
	c.readPump()
}
