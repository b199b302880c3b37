package websocket

import (
	"encoding/json"
	"sync"

	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// Hub maintains the set of active dashboard clients and broadcasts queue
// snapshots to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages from the broadcaster
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex to protect clients map
	mu sync.RWMutex

	// Logger
	logger zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", len(h.clients)).
				Msg("dashboard client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("dashboard client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			// Try to parse as a queue snapshot for per-client tenant filtering
			var snapshot types.QueueSnapshot
			if err := json.Unmarshal(message, &snapshot); err != nil || snapshot.TenantID == "" {
				// Not a snapshot, broadcast as-is to all clients
				h.broadcastRaw(message)
				continue
			}

			h.broadcastFiltered(&snapshot, message)
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

// BroadcastSnapshot marshals and broadcasts a queue snapshot
func (h *Hub) BroadcastSnapshot(snapshot types.QueueSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", snapshot.TenantID).Msg("failed to marshal queue snapshot")
		return
	}
	h.Broadcast(data)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastRaw sends a raw message to all clients without filtering
func (h *Hub) broadcastRaw(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Client's send buffer is full, close and remove it
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
}

// broadcastFiltered sends a snapshot only to clients allowed to see its tenant
func (h *Hub) broadcastFiltered(snapshot *types.QueueSnapshot, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.CanSeeTenant(snapshot.TenantID) {
			continue
		}

		select {
		case client.send <- message:
		default:
			// Client's send buffer is full, close and remove it
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
}
