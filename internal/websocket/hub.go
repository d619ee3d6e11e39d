package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/stemsplit/api/internal/model"
)

const (
	sendBuffer   = 256
	pingInterval = 30 * time.Second
)

// Client represents a WebSocket subscriber of one job
type Client struct {
	Hash string
	Conn *websocket.Conn
	Send chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by fingerprint
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	logger *slog.Logger
	mu     sync.RWMutex
}

// BroadcastMessage is an encoded event for the subscribers of one job
type BroadcastMessage struct {
	Hash    string
	Message []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. Once it returns, Register, Unregister and
// Broadcast no longer block.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Hash] == nil {
				h.clients[client.Hash] = make(map[*Client]bool)
			}
			h.clients[client.Hash][client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", slog.String("hash", client.Hash))

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", slog.String("hash", client.Hash))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.Hash] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops a client; callers hold mu
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.Hash]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
		if len(clients) == 0 {
			delete(h.clients, client.Hash)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues an encoded event for every subscriber of hash
func (h *Hub) Broadcast(hash string, message []byte) {
	select {
	case h.broadcast <- &BroadcastMessage{Hash: hash, Message: message}:
	case <-h.done:
	}
}

// Subscribers returns the number of clients watching hash
func (h *Hub) Subscribers(hash string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[hash])
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, hash string) {
	client := &Client{
		Hash: hash,
		Conn: c,
		Send: make(chan []byte, sendBuffer),
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", slog.String("hash", hash), slog.Any("error", err))
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong, Hash: hash})
			select {
			case client.Send <- pong:
			default:
			}
		}
	}
}
