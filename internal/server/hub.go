package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	TopicMarkets       = "markets"
	TopicNotifications = "notifications"

	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	// Frames queued per client before new ones are dropped.
	sendBuffer = 64
)

// ClientMsg is sent by websocket clients: subscribe, unsubscribe or ping.
type ClientMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// Envelope is every server-to-client frame.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// client is one websocket connection. Frames go through send and are written
// by writePump alone; send is closed by the hub under Hub.mu on unregister.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub tracks websocket clients and their topics. New clients receive every
// topic until they send an explicit subscribe. Broadcast never waits on a
// client: a full send queue drops the frame for that client only.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *Metrics
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	// Last payload per topic, replayed to new subscribers.
	last map[string][]byte
}

func NewHub(allowOrigin func(r *http.Request) bool, metrics *Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		metrics:  metrics,
		logger:   logger,
		clients:  make(map[*client]struct{}),
		last:     make(map[string][]byte),
	}
}

// HandleWS upgrades the request and serves the client until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	defer h.unregister(c)
	go c.writePump()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if c.topics == nil {
				c.topics = make(map[string]bool)
			}
			c.topics[msg.Topic] = true
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			if c.topics == nil {
				c.topics = map[string]bool{TopicMarkets: true, TopicNotifications: true}
			}
			delete(c.topics, msg.Topic)
			h.mu.Unlock()
		case "ping":
			b, _ := json.Marshal(Envelope{Type: "pong"})
			h.mu.RLock()
			h.enqueue(c, "pong", b)
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	for topic, b := range h.last {
		h.enqueue(c, topic, b)
	}
	h.mu.Unlock()
	h.metrics.wsConnected(1)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.metrics.wsConnected(-1)
}

// enqueue must be called with h.mu held so send is not closed underneath it.
func (h *Hub) enqueue(c *client, topic string, b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		h.logger.Debug("websocket client queue full, dropping frame", zap.String("topic", topic))
		return false
	}
}

// Broadcast queues payload for every client subscribed to topic.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	b, err := json.Marshal(Envelope{Type: topic, Payload: payload})
	if err != nil {
		h.logger.Warn("broadcast marshal failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if topic == TopicMarkets {
		h.last[topic] = b
	}
	for c := range h.clients {
		if c.topics != nil && !c.topics[topic] {
			continue
		}
		if h.enqueue(c, topic, b) {
			h.metrics.wsSent(topic)
		}
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
