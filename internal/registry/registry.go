package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

const (
	// StaleThreshold is the duration after which a silent agent is considered
	// gone (3 missed heartbeats) and taken out of routing consideration
	StaleThreshold = 6 * time.Second
)

// ErrNoCapacity is returned by Reserve when the capacity race is lost
// or the agent is no longer taking new conversations.
var ErrNoCapacity = errors.New("agent has no free capacity")

// ErrUnknownAgent is returned for operations on unregistered agents
var ErrUnknownAgent = errors.New("unknown agent")

// Registry maintains the authoritative view of one tenant's agents.
// Reserve is the sole capacity-increment path; it checks and increments
// under the registry lock so concurrent routing attempts cannot both win
// the same unit of capacity.
type Registry struct {
	tenantID string
	agents   map[string]*types.Agent // agentID -> live state
	mu       sync.RWMutex
	logger   zerolog.Logger
}

// NewRegistry creates an empty agent registry for a tenant
func NewRegistry(tenantID string, logger zerolog.Logger) *Registry {
	return &Registry{
		tenantID: tenantID,
		agents:   make(map[string]*types.Agent),
		logger:   logger.With().Str("component", "registry").Str("tenant_id", tenantID).Logger(),
	}
}

// Register adds or replaces an agent. Current load is preserved across
// re-registration so an agent reconnecting mid-conversation keeps its count.
func (r *Registry) Register(agent types.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	agent.TenantID = r.tenantID
	agent.StatusSince = now
	agent.LastHeartbeat = now
	if agent.Proficiencies == nil {
		agent.Proficiencies = make(map[string]int)
	}
	if existing, ok := r.agents[agent.ID]; ok {
		agent.CurrentActive = existing.CurrentActive
		agent.LastAssignedAt = existing.LastAssignedAt
		if existing.Status == agent.Status {
			agent.StatusSince = existing.StatusSince
		}
	}
	r.agents[agent.ID] = &agent
}

// Heartbeat refreshes liveness and applies a status update.
// Reports whether the agent transitioned into online (a routing trigger).
func (r *Registry) Heartbeat(agentID string, status types.AgentStatus) (cameOnline bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return false, ErrUnknownAgent
	}

	now := time.Now()
	agent.LastHeartbeat = now
	if agent.Status != status {
		cameOnline = status == types.StatusOnline
		agent.Status = status
		agent.StatusSince = now
	}
	return cameOnline, nil
}

// SetCapacity updates an agent's concurrency limit
func (r *Registry) SetCapacity(agentID string, maxConcurrent int) error {
	if maxConcurrent < 0 {
		maxConcurrent = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return ErrUnknownAgent
	}
	agent.MaxConcurrent = maxConcurrent
	return nil
}

// SetProficiencies replaces an agent's tag proficiency map, clamping levels
func (r *Registry) SetProficiencies(agentID string, proficiencies map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return ErrUnknownAgent
	}

	clamped := make(map[string]int, len(proficiencies))
	for tagID, level := range proficiencies {
		if level < types.ProficiencyMin {
			level = types.ProficiencyMin
		}
		if level > types.ProficiencyMax {
			level = types.ProficiencyMax
		}
		clamped[tagID] = level
	}
	agent.Proficiencies = clamped
	return nil
}

// Available snapshots the agents eligible for a scoring pass: online, under
// capacity, and either matching one of the required tags or flagged as an
// overflow candidate. With no required tags every eligible agent matches.
func (r *Registry) Available(requiredTags []types.DetectedTag) []types.Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]types.Candidate, 0, len(r.agents))
	for _, agent := range r.agents {
		if !agent.HasCapacity() {
			continue
		}
		matched := len(requiredTags) == 0
		for _, tag := range requiredTags {
			if _, ok := agent.Proficiencies[tag.TagID]; ok {
				matched = true
				break
			}
		}
		if !matched && !agent.AcceptsOverflow {
			continue
		}
		candidates = append(candidates, types.Candidate{
			Agent:    *agent,
			Overflow: !matched,
		})
	}
	return candidates
}

// Reserve atomically claims one unit of capacity. It re-checks live status
// so a stale snapshot can never produce an invalid assignment.
func (r *Registry) Reserve(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return ErrUnknownAgent
	}
	if !agent.HasCapacity() {
		return ErrNoCapacity
	}
	agent.CurrentActive++
	agent.LastAssignedAt = time.Now()
	return nil
}

// Release returns one unit of capacity on conversation close or transfer-out.
// A decrement below zero indicates a bookkeeping bug elsewhere; it is clamped
// and logged as an error condition.
func (r *Registry) Release(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		r.logger.Error().Str("agent_id", agentID).Msg("release for unknown agent")
		return
	}
	if agent.CurrentActive <= 0 {
		r.logger.Error().Str("agent_id", agentID).Msg("release would drive active count negative")
		agent.CurrentActive = 0
		return
	}
	agent.CurrentActive--
}

// CheckStale marks agents without a recent heartbeat as offline.
// Returns the IDs that were taken offline.
func (r *Registry) CheckStale() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := time.Now().Add(-StaleThreshold)
	var stale []string
	for id, agent := range r.agents {
		if agent.Status != types.StatusOffline && agent.LastHeartbeat.Before(threshold) {
			agent.Status = types.StatusOffline
			agent.StatusSince = time.Now()
			stale = append(stale, id)
		}
	}
	return stale
}

// Get returns a copy of an agent's current state
func (r *Registry) Get(agentID string) (types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return types.Agent{}, false
	}
	return *agent, true
}

// All returns copies of all agents
func (r *Registry) All() []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]types.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		agents = append(agents, *agent)
	}
	return agents
}

// OnlineCount returns the number of online agents with spare capacity
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, agent := range r.agents {
		if agent.HasCapacity() {
			count++
		}
	}
	return count
}

// Count returns the total number of registered agents
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
