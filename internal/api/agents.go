package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/relaydesk/backend/internal/engine"
	"github.com/relaydesk/backend/internal/registry"
	"github.com/relaydesk/backend/internal/types"
	"github.com/relaydesk/backend/internal/websocket"
	"github.com/rs/zerolog"
)

// RosterEntry represents a single agent in the roster payload.
// AcceptsOverflow left out means the tenant default applies.
type RosterEntry struct {
	AgentID         string         `json:"agentId"`
	Name            string         `json:"name,omitempty"`
	MaxConcurrent   int            `json:"maxConcurrent"`
	AcceptsOverflow *bool          `json:"acceptsOverflow,omitempty"`
	Proficiencies   map[string]int `json:"proficiencies,omitempty"`
}

// AgentsHandler provides REST endpoints for agent roster and control actions
type AgentsHandler struct {
	engine   *engine.Engine
	agentHub *websocket.AgentHub
	logger   zerolog.Logger
}

// NewAgentsHandler creates a new AgentsHandler
func NewAgentsHandler(eng *engine.Engine, agentHub *websocket.AgentHub, logger zerolog.Logger) *AgentsHandler {
	return &AgentsHandler{
		engine:   eng,
		agentHub: agentHub,
		logger:   logger.With().Str("component", "agents_handler").Logger(),
	}
}

// GetRoster handles GET /api/tenants/{tenantId}/agents
func (h *AgentsHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}

	t, err := h.engine.Tenant(tenantID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	agents := t.Registry.All()
	if agents == nil {
		agents = []types.Agent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agents)
}

// BootstrapRoster handles POST /api/tenants/{tenantId}/agents/roster.
// Pre-registers the tenant's agents (offline) so proficiency edits and
// dashboards work before any session connects.
func (h *AgentsHandler) BootstrapRoster(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}

	var roster []RosterEntry
	if err := json.NewDecoder(r.Body).Decode(&roster); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	registered := 0
	for _, entry := range roster {
		if entry.AgentID == "" {
			continue
		}
		err := h.engine.RegisterAgent(tenantID, types.Agent{
			ID:            entry.AgentID,
			Name:          entry.Name,
			Status:        types.StatusOffline,
			MaxConcurrent: entry.MaxConcurrent,
			Proficiencies: entry.Proficiencies,
		}, entry.AcceptsOverflow)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		registered++
	}

	h.logger.Info().Str("tenant_id", tenantID).Int("registered", registered).Msg("roster received")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"registered": registered})
}

// SetCapacity handles PUT /api/tenants/{tenantId}/agents/{agentId}/capacity
func (h *AgentsHandler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	agentID := chi.URLParam(r, "agentId")

	var req struct {
		MaxConcurrent int `json:"maxConcurrent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.engine.SetAgentCapacity(tenantID, agentID, req.MaxConcurrent); err != nil {
		writeAgentError(w, err)
		return
	}

	h.logger.Info().
		Str("agent_id", agentID).
		Int("max_concurrent", req.MaxConcurrent).
		Msg("agent capacity updated via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "capacity updated", "agentId": agentID})
}

// SetProficiencies handles PUT /api/tenants/{tenantId}/agents/{agentId}/proficiencies
func (h *AgentsHandler) SetProficiencies(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	agentID := chi.URLParam(r, "agentId")

	var req struct {
		Proficiencies map[string]int `json:"proficiencies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Proficiencies == nil {
		http.Error(w, `{"error":"proficiencies are required"}`, http.StatusBadRequest)
		return
	}

	if err := h.engine.SetAgentProficiencies(tenantID, agentID, req.Proficiencies); err != nil {
		writeAgentError(w, err)
		return
	}

	h.logger.Info().
		Str("agent_id", agentID).
		Int("tags", len(req.Proficiencies)).
		Msg("agent proficiencies updated via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "proficiencies updated", "agentId": agentID})
}

// Logout handles POST /api/tenants/{tenantId}/agents/{agentId}/logout
func (h *AgentsHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, `{"error":"agentId is required"}`, http.StatusBadRequest)
		return
	}

	// Force-disconnect the agent session (hub handles cleanup)
	ok := h.agentHub.ForceDisconnect(agentID)
	if !ok {
		http.Error(w, `{"error":"agent not connected"}`, http.StatusNotFound)
		return
	}

	h.logger.Info().
		Str("agent_id", agentID).
		Msg("force-disconnected agent via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "agent logged out",
		"agentId": agentID,
	})
}

// writeAgentError maps registry errors to HTTP status codes
func writeAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrUnknownAgent):
		http.Error(w, `{"error":"agent not found"}`, http.StatusNotFound)
	case errors.Is(err, engine.ErrTenantNotFound):
		http.Error(w, `{"error":"tenant not found"}`, http.StatusNotFound)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
