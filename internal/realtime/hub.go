package realtime

import (
	"sync"

	"spacechat/internal/logger"
)

// Hub tracks the live websocket clients so they can be shut down
// together with the server.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]bool
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	logger.Infof("websocket client connected for conversation %s, total clients: %d", c.view.ConversationID(), n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()
	logger.Infof("websocket client disconnected, remaining clients: %d", n)
}

// CloseAll tears down every connected client, closing their views and
// connections.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
}
