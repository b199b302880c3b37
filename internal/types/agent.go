package types

import "time"

// AgentStatus represents the current availability of an agent
type AgentStatus string

const (
	StatusOnline  AgentStatus = "online"
	StatusBusy    AgentStatus = "busy"
	StatusAway    AgentStatus = "away"
	StatusOffline AgentStatus = "offline"
)

// ProficiencyMin and ProficiencyMax bound the declared skill level per tag
const (
	ProficiencyMin = 1
	ProficiencyMax = 5
)

// Agent represents the live view of a support agent within one tenant
type Agent struct {
	ID              string         `json:"agentId"`
	TenantID        string         `json:"tenantId"`
	Name            string         `json:"name,omitempty"`
	Status          AgentStatus    `json:"status"`
	MaxConcurrent   int            `json:"maxConcurrent"`
	CurrentActive   int            `json:"currentActive"`
	AcceptsOverflow bool           `json:"acceptsOverflow"`
	Proficiencies   map[string]int `json:"proficiencies"` // tagID -> level 1..5
	StatusSince     time.Time      `json:"statusSince"`   // when current status started
	LastHeartbeat   time.Time      `json:"lastHeartbeat"`
	LastAssignedAt  time.Time      `json:"lastAssignedAt,omitempty"`
}

// HasCapacity reports whether the agent can take one more conversation
func (a *Agent) HasCapacity() bool {
	return a.Status == StatusOnline && a.CurrentActive < a.MaxConcurrent
}

// Candidate is an immutable snapshot of an agent taken for one scoring pass.
// Overflow marks agents returned only because they accept out-of-skill work.
type Candidate struct {
	Agent    Agent `json:"agent"`
	Overflow bool  `json:"overflow"`
}
