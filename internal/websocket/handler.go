package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/relaydesk/backend/internal/auth"
	"github.com/relaydesk/backend/internal/config"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now
		return true
	},
}

// Handler handles WebSocket upgrade requests from monitoring dashboards
type Handler struct {
	hub    *Hub
	config *config.Config
	logger zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Claims were attached by the auth middleware; nil when auth is bypassed
	claims, _ := auth.GetUserFromContext(r.Context())

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	// Create new client
	client := NewClient(h.hub, conn, h.config, h.logger, claims)

	// Register client with hub
	h.hub.register <- client

	// Start client pumps
	client.Start()
}
