package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"spacechat/internal/chat"
	"spacechat/internal/crash"
	"spacechat/internal/logger"
)

// Event is the wire envelope exchanged with browser clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// sendPayload is the inbound message frame from the browser.
type sendPayload struct {
	Content string `json:"content"`
}

// errorPayload reports a failed send to the browser. Content carries the
// rejected text so the client can restore the user's input.
type errorPayload struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
}

// Client is one websocket connection bound to a live conversation view.
// The view owns the working list; the client forwards its history
// snapshot and live event feed to the browser and relays inbound sends.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	view     *chat.ConversationView
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

// ServeClient attaches a connection to its conversation view and starts
// the read/write pumps. It returns immediately; the pumps own the
// connection and view lifecycle from here.
func ServeClient(hub *Hub, conn *websocket.Conn, view *chat.ConversationView) {
	c := &Client{
		hub:  hub,
		conn: conn,
		view: view,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	hub.register(c)

	c.enqueue(Event{Type: "history", Payload: view.Messages()})

	crash.SafeGoroutine("ws-write", c.writePump)
	crash.SafeGoroutine("ws-read", c.readPump)
	crash.SafeGoroutine("ws-feed", c.feedPump)
}

// readPump relays inbound send frames to the view until the connection
// drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.shutdown()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warningf("websocket read error: %v", err)
			}
			return
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			logger.Warningf("malformed websocket frame: %v", err)
			continue
		}
		if evt.Type != "message" {
			continue
		}

		raw, err := json.Marshal(evt.Payload)
		if err != nil {
			continue
		}
		var payload sendPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}

		if err := c.view.Send(context.Background(), payload.Content); err != nil {
			var sendErr *chat.SendError
			out := errorPayload{Message: err.Error()}
			if errors.As(err, &sendErr) {
				out.Content = sendErr.Content
			}
			c.enqueue(Event{Type: "error", Payload: out})
		}
	}
}

// feedPump forwards the view's deduplicated insert feed to the send
// queue. The feed closes when the view closes.
func (c *Client) feedPump() {
	for msg := range c.view.Events() {
		c.enqueue(Event{Type: "message", Payload: msg})
	}
	c.shutdown()
}

// writePump drains the send queue onto the connection.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) enqueue(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Warningf("failed to marshal websocket event: %v", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		logger.Warningf("websocket send queue full, dropping frame")
	}
}

// shutdown closes the view and the connection. Safe to call from any
// pump; runs once.
func (c *Client) shutdown() {
	c.stopOnce.Do(func() {
		c.view.Close()
		close(c.done)
		c.conn.Close()
	})
}
