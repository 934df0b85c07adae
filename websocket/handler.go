package websocket

import (
	"log"
	"net/http"
	"time"

	"dailyvote-bot/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512
)

// MsgPollSnapshot is sent once right after a client connects.
const MsgPollSnapshot = "POLL_SNAPSHOT"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotSource looks up the current state of a live poll.
type SnapshotSource interface {
	Snapshot(pollID string) (models.PollSnapshot, bool)
}

// Handler upgrades HTTP requests into poll subscriptions.
type Handler struct {
	hub   *Hub
	polls SnapshotSource
}

// NewHandler creates a handler.
func NewHandler(hub *Hub, polls SnapshotSource) *Handler {
	return &Handler{hub: hub, polls: polls}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/polls/:id", h.HandleWebSocketConnection)
}

// HandleWebSocketConnection subscribes the caller to a live poll.
func (h *Handler) HandleWebSocketConnection(c *gin.Context) {
	pollID := c.Param("id")
	snap, ok := h.polls.Snapshot(pollID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found or already ended"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	client := &Client{
		PollID: pollID,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
	if data, err := encode(pollID, MsgPollSnapshot, snap); err == nil {
		client.send <- data
	}

	h.hub.RegisterClient(client)
	go h.writePump(client)
	go h.readPump(client)
}

// readPump only watches for close and pong frames; clients never send data.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error on poll %s: %v", client.PollID, err)
			}
			return
		}
	}
}

func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
