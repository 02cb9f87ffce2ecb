package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// StreamHub fans freshly built rotation edges out to websocket subscribers.
// It implements contracts.EdgePublisher; a hub with no subscribers drops
// events silently, publication is fire-and-forget.
type StreamHub struct {
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

// NewStreamHub creates an empty hub.
func NewStreamHub(log *logger.Logger) *StreamHub {
	return &StreamHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  log.WithField("module", "stream"),
		clients: make(map[*streamClient]struct{}),
	}
}

// edgeEvent is the wire format of one published edge.
type edgeEvent struct {
	Type string                  `json:"type"`
	Edge *contracts.RotationEdge `json:"edge"`
}

// PublishEdge broadcasts an edge to every connected subscriber. A slow
// subscriber whose buffer is full is disconnected rather than letting it
// stall the pipeline.
func (h *StreamHub) PublishEdge(edge *contracts.RotationEdge) {
	payload, err := json.Marshal(edgeEvent{Type: "edge", Edge: edge})
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode edge event")
		return
	}

	h.mu.RLock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("Dropping slow stream subscriber")
			h.remove(c)
		}
	}
}

// Serve upgrades the request and registers the subscriber.
func (h *StreamHub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &streamClient{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.WithField("subscribers", count).Debug("Stream subscriber connected")

	go h.writeLoop(client)
	go h.readLoop(client)
}

// SubscriberCount reports the number of connected clients.
func (h *StreamHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// readLoop discards inbound frames; its job is detecting disconnects and
// answering pings.
func (h *StreamHub) readLoop(c *streamClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writeLoop(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

var _ contracts.EdgePublisher = (*StreamHub)(nil)
