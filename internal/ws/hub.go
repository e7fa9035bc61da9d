package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/redis/go-redis/v9"
)

const redisChannel = "edumsg:events"

// Hub manages all WebSocket connections and delivers events to users.
// With a Redis client, events go through Redis Pub/Sub so that every instance
// delivers to its own connections; without one, delivery is local only.
type Hub struct {
	// Map of user -> set of client connections (one user can have multiple tabs/devices)
	clients map[model.UserRef]map[*Client]bool
	mu      sync.RWMutex

	// Channels for registering/unregistering clients
	register   chan *Client
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Redis client for Pub/Sub (horizontal scaling), may be nil
	rdb *redis.Client
}

// NewHub creates a new WebSocket Hub
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		clients:    make(map[model.UserRef]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
	}
}

// Run starts the Hub's main event loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register queues a client for registration with the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister queues a client for removal. It returns at once when the hub
// has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// addClient registers a new client connection
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.User]; !ok {
		h.clients[client.User] = make(map[*Client]bool)
	}
	h.clients[client.User][client] = true
	log.Printf("✅ Client connected: %s (total connections: %d)", client.User, len(h.clients[client.User]))
}

// removeClient unregisters a client connection
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.User]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.User)
	}
	log.Printf("❌ Client disconnected: %s", client.User)
}

// SendToUser sends an event to a specific user (all their connections)
func (h *Hub) SendToUser(user model.UserRef, event *model.WSEvent) {
	h.SendToUsers([]model.UserRef{user}, event)
}

// SendToUsers sends an event to several users
func (h *Hub) SendToUsers(users []model.UserRef, event *model.WSEvent) {
	if len(users) == 0 {
		return
	}
	targeted := &TargetedEvent{Targets: users, Event: event}
	if h.rdb == nil {
		h.deliver(targeted)
		return
	}
	h.publishToRedis(targeted)
}

// deliver writes the event to the local connections of its targets
func (h *Hub) deliver(targeted *TargetedEvent) {
	data, err := json.Marshal(targeted.Event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, user := range targeted.Targets {
		for client := range h.clients[user] {
			select {
			case client.send <- data:
			default:
				// Client's send buffer is full, drop the connection
				go h.Unregister(client)
			}
		}
	}
}

// sendToClient writes to one registered connection, dropping the event when
// its buffer is full
func (h *Hub) sendToClient(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client.User][client] {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// IsUserOnline checks if a user has any active connections on this instance
func (h *Hub) IsUserOnline(user model.UserRef) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[user]
	return ok
}

// ========== Redis Pub/Sub for Horizontal Scaling ==========

// TargetedEvent wraps an event with its recipients for Redis Pub/Sub
type TargetedEvent struct {
	Targets []model.UserRef `json:"targets"`
	Event   *model.WSEvent  `json:"event"`
}

// publishToRedis publishes an event to Redis for cross-instance communication
func (h *Hub) publishToRedis(targeted *TargetedEvent) {
	jsonData, err := json.Marshal(targeted)
	if err != nil {
		log.Printf("Error marshaling for Redis: %v", err)
		return
	}

	if err := h.rdb.Publish(context.Background(), redisChannel, jsonData).Err(); err != nil {
		log.Printf("Error publishing to Redis: %v", err)
	}
}

// subscribeRedis subscribes to Redis and delivers events to local clients
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Println("📡 Redis Pub/Sub subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var targeted TargetedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &targeted); err != nil {
				log.Printf("Error unmarshaling Redis message: %v", err)
				continue
			}
			if targeted.Event != nil {
				h.deliver(&targeted)
			}
		}
	}
}
