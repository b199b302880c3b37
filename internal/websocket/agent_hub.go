package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/relaydesk/backend/internal/ingestion"
	"github.com/relaydesk/backend/internal/metrics"
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// AgentHub maintains the set of active agent WebSocket connections
type AgentHub struct {
	// Registered agent clients
	agents map[string]*AgentClient // agentID -> client

	// Register requests from agent clients
	register chan *AgentClient

	// Unregister requests from agent clients
	unregister chan *AgentClient

	// Registration messages from agents
	agentRegister chan *types.AgentRegister

	// Heartbeat messages from agents
	heartbeat chan *types.AgentHeartbeat

	// Status change messages from agents
	statusChange chan *types.AgentStatusChange

	// Conversation close messages from agents
	conversationClose chan *types.ConversationClose

	// Mutex to protect agents map
	mu sync.RWMutex

	// Logger
	logger zerolog.Logger

	// Event processor (routes agent events into the engine)
	processor ingestion.EventProcessor
}

// NewAgentHub creates a new AgentHub
func NewAgentHub(processor ingestion.EventProcessor, logger zerolog.Logger) *AgentHub {
	return &AgentHub{
		agents:            make(map[string]*AgentClient),
		register:          make(chan *AgentClient),
		unregister:        make(chan *AgentClient),
		agentRegister:     make(chan *types.AgentRegister, 100),
		heartbeat:         make(chan *types.AgentHeartbeat, 1000),
		statusChange:      make(chan *types.AgentStatusChange, 500),
		conversationClose: make(chan *types.ConversationClose, 500),
		logger:            logger,
		processor:         processor,
	}
}

// Run starts the hub's main loop
func (h *AgentHub) Run() {
	m := metrics.Get()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// Remove existing client with same agentID if any
			if existing, ok := h.agents[client.agentID]; ok {
				existing.Close()
				delete(h.agents, client.agentID)
			}
			h.agents[client.agentID] = client
			h.mu.Unlock()

			m.RecordWebSocketConnect()

			h.logger.Debug().
				Str("agent_id", client.agentID).
				Int("total_agents", len(h.agents)).
				Msg("agent session connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.agents[client.agentID]; ok && existing == client {
				delete(h.agents, client.agentID)
				client.Close()
				m.RecordWebSocketDisconnect()
				h.processor.ProcessDisconnect(client.tenantID, client.agentID)

				h.logger.Debug().
					Str("agent_id", client.agentID).
					Int("total_agents", len(h.agents)).
					Msg("agent session disconnected")
			}
			h.mu.Unlock()

		case reg := <-h.agentRegister:
			h.processor.ProcessRegister(reg)

		case hb := <-h.heartbeat:
			h.processor.ProcessHeartbeat(hb)

		case sc := <-h.statusChange:
			h.processor.ProcessStatusChange(sc)

		case cc := <-h.conversationClose:
			h.processor.ProcessClose(cc)
		}
	}
}

// NotifyAssigned pushes a conversation_assign message to the agent session.
// Returns false when the agent has no live session; the assignment stands
// either way, the agent UI picks it up on reconnect.
func (h *AgentHub) NotifyAssigned(tenantID, agentID, conversationID string) bool {
	msg := types.ConversationAssign{
		Type:           "conversation_assign",
		AgentID:        agentID,
		ConversationID: conversationID,
		TenantID:       tenantID,
		Timestamp:      time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal conversation_assign")
		return false
	}
	return h.SendToAgent(agentID, data)
}

// ForceDisconnect sends a force_disconnect message to the agent, then closes the connection
func (h *AgentHub) ForceDisconnect(agentID string) bool {
	msg := types.ForceDisconnect{
		Type:    "force_disconnect",
		AgentID: agentID,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal force_disconnect")
		return false
	}

	// Send the message first
	h.SendToAgent(agentID, data)

	// Then close the connection
	h.mu.Lock()
	client, ok := h.agents[agentID]
	if ok {
		delete(h.agents, agentID)
		client.Close()
		metrics.Get().RecordWebSocketDisconnect()
		h.processor.ProcessDisconnect(client.tenantID, agentID)
		h.logger.Info().Str("agent_id", agentID).Msg("agent force-disconnected")
	}
	h.mu.Unlock()

	return ok
}

// AgentCount returns the number of connected agents
func (h *AgentHub) AgentCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}

// SendToAgent sends a message to a specific agent
func (h *AgentHub) SendToAgent(agentID string, message []byte) bool {
	h.mu.RLock()
	client, ok := h.agents[agentID]
	h.mu.RUnlock()

	if !ok {
		return false
	}

	return client.safeSend(message)
}
