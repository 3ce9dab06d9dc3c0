package websocket

import (
	"sync"
	"time"

	"thoth/internal/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The user ID this client represents.
	UserID string

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	topics    map[string]bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient builds a client receiving the given hub topics. Payloads written
// with Enqueue reach it regardless of topic.
func NewClient(hub *Hub, userID string, conn *websocket.Conn, topics ...string) *Client {
	c := &Client{
		Hub:    hub,
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		topics: make(map[string]bool, len(topics)),
		done:   make(chan struct{}),
	}
	for _, t := range topics {
		c.topics[t] = true
	}
	return c
}

func (c *Client) Subscribed(topic string) bool {
	return c.topics[topic]
}

// Done is closed once the connection stops reading.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Enqueue queues payload without blocking. It reports false when the buffer
// is full or the client is gone.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// ReadPump pumps messages from the websocket connection until it fails.
func (c *Client) ReadPump() {
	defer func() {
		c.closeOnce.Do(func() { close(c.done) })
		c.Hub.unregister(c)
		c.Conn.Close()
		utils.Logger.Debug("websocket read pump stopped", zap.String("userId", c.UserID))
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Logger.Debug("websocket read error", zap.String("userId", c.UserID), zap.Error(err))
			}
			return
		}
		// Clients only listen; inbound frames just keep the connection alive.
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				utils.Logger.Debug("websocket write error", zap.String("userId", c.UserID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
