// Package websocket streams live poll tallies to browser clients.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is the frame sent to clients.
type Message struct {
	Type      string      `json:"type"`
	PollID    string      `json:"poll_id"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// Client is one websocket connection watching a poll.
type Client struct {
	PollID string

	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the connected clients grouped by poll and fans messages out.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for pollID, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, pollID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.PollID]; !ok {
				h.clients[client.PollID] = make(map[*Client]bool)
			}
			h.clients[client.PollID][client] = true
			n := len(h.clients[client.PollID])
			h.mu.Unlock()
			log.Printf("websocket: client registered for poll %s, total clients: %d", client.PollID, n)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			log.Printf("websocket: client unregistered for poll %s", client.PollID)
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.PollID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.PollID)
	}
}

// BroadcastToPoll sends a message to every client watching pollID.
// Clients whose buffer is full are dropped.
func (h *Hub) BroadcastToPoll(pollID string, msgType string, payload interface{}) {
	data, err := encode(pollID, msgType, payload)
	if err != nil {
		log.Printf("websocket: encode %s message: %v", msgType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[pollID]
	for client := range clients {
		select {
		case client.send <- data:
		default:
			h.removeLocked(client)
		}
	}
	if len(clients) > 0 {
		log.Printf("websocket: broadcast %s to %d clients of poll %s", msgType, len(clients), pollID)
	}
}

// ClientCount returns how many clients watch pollID.
func (h *Hub) ClientCount(pollID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[pollID])
}

// RegisterClient adds a client to the hub. After the hub stopped the
// client is closed right away.
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// UnregisterClient removes a client from the hub.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func encode(pollID, msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{
		Type:      msgType,
		PollID:    pollID,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	})
}
