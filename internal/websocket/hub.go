package websocket

import (
	"context"
	"sync"
	"time"

	"thoth/internal/utils"

	"go.uber.org/zap"
)

// MessageToSend is a payload for every session of one user on one topic.
type MessageToSend struct {
	TargetUserID string
	Topic        string
	Payload      []byte
}

// Hub maintains the set of active clients and routes messages to them.
type Hub struct {
	// Registered clients. Maps user ID to a set of active client connections.
	Clients map[string]map[*Client]bool

	// Channel for sending messages to specific users.
	SendDirect chan *MessageToSend

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Mutex to protect concurrent access to the clients map.
	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		SendDirect: make(chan *MessageToSend, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Clients:    make(map[string]map[*Client]bool),
	}
}

// Run processes registrations and direct messages until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	utils.Logger.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			utils.Logger.Info("websocket hub stopped")
			return

		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.Clients[client.UserID]; !ok {
				h.Clients[client.UserID] = make(map[*Client]bool)
			}
			h.Clients[client.UserID][client] = true
			utils.Logger.Debug("websocket client registered",
				zap.String("userId", client.UserID),
				zap.Int("connections", len(h.Clients[client.UserID])))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if userClients, ok := h.Clients[client.UserID]; ok {
				delete(userClients, client)
				if len(userClients) == 0 {
					delete(h.Clients, client.UserID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.SendDirect:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *MessageToSend) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.Clients[msg.TargetUserID] {
		if !client.Subscribed(msg.Topic) {
			continue
		}
		if !client.Enqueue(msg.Payload) {
			utils.Logger.Warn("websocket send buffer full, message dropped",
				zap.String("userId", client.UserID),
				zap.String("topic", msg.Topic))
		}
	}
}

// Attach registers client with the hub. It gives up after a second if the hub is not running.
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-time.After(time.Second):
	}
}

// Connected counts the live sessions of userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients[userID])
}

// SendDirectMessage queues payload for every session of targetUserID that
// subscribed to topic. Offline users are skipped silently.
func (h *Hub) SendDirectMessage(targetUserID, topic string, payload []byte) {
	message := &MessageToSend{
		TargetUserID: targetUserID,
		Topic:        topic,
		Payload:      payload,
	}
	select {
	case h.SendDirect <- message:
	case <-time.After(1 * time.Second):
		utils.Logger.Warn("timeout queuing websocket message, hub busy",
			zap.String("userId", targetUserID),
			zap.String("topic", topic))
	}
}
