// Package hub fans rendered predictions and webcam frames out to browser
// websocket clients.
//
// Delivery is last-write-wins: each client holds at most one pending
// message per kind, and a newer message replaces an unsent older one. A
// slow page therefore skips stale frames instead of building a queue.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message kinds. Each kind has its own pending slot per client.
const (
	KindUpdate = "update"
	KindFrame  = "frame"
	KindStatus = "status"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message is one websocket frame.
type Message struct {
	Kind string
	Type int // websocket.TextMessage or websocket.BinaryMessage
	Data []byte
}

// Hub tracks connected clients and the latest message of each kind.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	latest  map[string]Message
}

// New creates an empty hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
		latest:  make(map[string]Message),
	}
}

// Broadcast records msg as the latest of its kind and offers it to every
// client.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	h.latest[msg.Kind] = msg
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.offer(msg)
	}
}

// Forget drops the latest message of kind so new clients are not sent it.
// Clients that already hold it are unaffected.
func (h *Hub) Forget(kind string) {
	h.mu.Lock()
	delete(h.latest, kind)
	h.mu.Unlock()
}

// replayOrder lists the kinds a new client is sent first, status last so
// it describes the frames before it. Unknown kinds go in between.
var replayOrder = []string{KindFrame, KindUpdate}

// replay returns the latest messages in the order a new client gets them.
// Caller holds h.mu.
func (h *Hub) replay() []Message {
	out := make([]Message, 0, len(h.latest))
	for _, kind := range replayOrder {
		if msg, ok := h.latest[kind]; ok {
			out = append(out, msg)
		}
	}
	var rest []string
	for kind := range h.latest {
		if kind != KindStatus && !slices.Contains(replayOrder, kind) {
			rest = append(rest, kind)
		}
	}
	slices.Sort(rest)
	for _, kind := range rest {
		out = append(out, h.latest[kind])
	}
	if msg, ok := h.latest[KindStatus]; ok {
		out = append(out, msg)
	}
	return out
}

// BroadcastJSON encodes v and broadcasts it as a text message.
func (h *Hub) BroadcastJSON(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Kind: kind, Type: websocket.TextMessage, Data: data})
	return nil
}

// BroadcastBinary broadcasts raw bytes, such as a JPEG frame.
func (h *Hub) BroadcastBinary(kind string, data []byte) {
	h.Broadcast(Message{Kind: kind, Type: websocket.BinaryMessage, Data: data})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and serves the client until it disconnects.
// A new client first receives the latest message of every kind, frame
// first and status last.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	for _, msg := range h.replay() {
		c.offer(msg)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", "client", c.id, "clients", count)

	go c.writePump()
	c.readPump()

	h.mu.Lock()
	delete(h.clients, c)
	count = len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Info("client disconnected", "client", c.id, "clients", count)
}

// ServeWSHandler returns ServeWS as an http.Handler.
func (h *Hub) ServeWSHandler() http.Handler {
	return http.HandlerFunc(h.ServeWS)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// Client is one websocket connection.
type Client struct {
	id   string
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]Message
	order   []string
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		pending: make(map[string]Message),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// offer replaces any unsent message of the same kind.
func (c *Client) offer(msg Message) {
	c.mu.Lock()
	if _, ok := c.pending[msg.Kind]; !ok {
		c.order = append(c.order, msg.Kind)
	}
	c.pending[msg.Kind] = msg
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// drain takes every pending message in first-offered order.
func (c *Client) drain() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.order))
	for _, kind := range c.order {
		out = append(out, c.pending[kind])
	}
	c.pending = make(map[string]Message)
	c.order = c.order[:0]
	return out
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
			for _, msg := range c.drain() {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(msg.Type, msg.Data); err != nil {
					c.close()
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readPump discards inbound messages and returns when the peer goes away.
func (c *Client) readPump() {
	c.conn.SetReadLimit(4096)
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

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
