package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

// Event is the payload broadcast to all connected clients when a record changes.
type Event struct {
	Type   string `json:"type"`
	ID     any    `json:"id"`
	Action string `json:"action"`
}

// client owns one connection. Only writePump writes to conn; send is closed
// by the hub when the client is removed.
type client struct {
	conn *ws.Conn
	send chan []byte
}

func (c *client) writePump() {
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
				_ = c.conn.WriteMessage(ws.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Hub fans change events out to connected clients.
type Hub struct {
	log      logrus.FieldLogger
	upgrader ws.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub that logs through log.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:      log.WithField("component", "ws"),
		upgrader: ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove drops c and stops its writer. The caller holds mu.
func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues evt for every client without waiting on the network.
// Clients whose queue is full are dropped.
func (h *Hub) Broadcast(evt Event) {
	if h == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Warn("marshal event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Debug("dropping slow client")
			h.remove(c)
		}
	}
}

// BroadcastChange announces that a record of resourceType changed,
// e.g. ("part", "create", 12) sends type "part_created".
func (h *Hub) BroadcastChange(resourceType, action string, id any) {
	past := action + "ed"
	if strings.HasSuffix(action, "e") {
		past = action + "d"
	}
	h.Broadcast(Event{
		Type:   resourceType + "_" + past,
		ID:     id,
		Action: action,
	})
}

// ServeHTTP upgrades the connection and keeps it alive with pings until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	h.log.WithField("clients", h.ClientCount()).Info("client connected")
	go c.writePump()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
	h.log.Info("client disconnected")
}
