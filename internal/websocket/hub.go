// Package websocket pushes committed placements to connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tierboard/internal/domain"
)

// Message types
const (
	MessageTypePlacementCommitted = "placement_committed"
	MessageTypeSubscribe          = "subscribe"
	MessageTypeUnsubscribe        = "unsubscribe"
	MessageTypeSubscribed         = "subscribed"
	MessageTypeUnsubscribed       = "unsubscribed"
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
	MessageTypeError              = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string          `json:"type"`
	Gamemode  domain.Gamemode `json:"gamemode,omitempty"`
	Data      interface{}     `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts messages.
// Clients without subscriptions receive every gamemode.
type Hub struct {
	// Subscribed clients by gamemode
	clients map[domain.Gamemode]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client   *Client
	gamemode domain.Gamemode
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[domain.Gamemode]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				client.topics.Each(func(gm domain.Gamemode) bool {
					h.removeSubscriber(gm, client)
					return false
				})
				client.topics.Clear()
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.clients[req.gamemode]; !ok {
					h.clients[req.gamemode] = make(map[*Client]bool)
				}
				h.clients[req.gamemode][req.client] = true
				req.client.topics.Add(req.gamemode)
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "gamemode", req.gamemode)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			h.removeSubscriber(req.gamemode, req.client)
			req.client.topics.Remove(req.gamemode)
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "gamemode", req.gamemode)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// removeSubscriber must be called with mu held
func (h *Hub) removeSubscriber(gm domain.Gamemode, client *Client) {
	if clients, ok := h.clients[gm]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, gm)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to subscribers of its gamemode and to
// every client that has not narrowed its subscriptions
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.allClients {
		if client.topics.Cardinality() > 0 && !h.clients[message.Gamemode][client] {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// PublishPlacementCommitted queues the event for broadcast. A full queue
// drops the event.
func (h *Hub) PublishPlacementCommitted(ctx context.Context, event domain.PlacementCommitted) error {
	message := &Message{
		Type:      MessageTypePlacementCommitted,
		Gamemode:  event.Gamemode,
		Data:      event,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "player_id", event.PlayerID)
	}
	return nil
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe narrows a client to a gamemode
func (h *Hub) Subscribe(client *Client, gamemode domain.Gamemode) {
	h.subscribe <- &subscriptionRequest{
		client:   client,
		gamemode: gamemode,
	}
}

// Unsubscribe removes a gamemode from a client's subscriptions
func (h *Hub) Unsubscribe(client *Client, gamemode domain.Gamemode) {
	h.unsubscribe <- &subscriptionRequest{
		client:   client,
		gamemode: gamemode,
	}
}

// GetSubscriberCount returns the number of subscribers for a gamemode
func (h *Hub) GetSubscriberCount(gamemode domain.Gamemode) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[gamemode]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
