package types

import "time"

// AgentRegister is sent when an agent session first connects.
// AcceptsOverflow left out of the payload means the tenant default applies.
type AgentRegister struct {
	Type            string         `json:"type"` // "register"
	AgentID         string         `json:"agentId"`
	TenantID        string         `json:"tenantId"`
	Name            string         `json:"name,omitempty"`
	Status          AgentStatus    `json:"status"`
	MaxConcurrent   int            `json:"maxConcurrent"`
	AcceptsOverflow *bool          `json:"acceptsOverflow,omitempty"`
	Proficiencies   map[string]int `json:"proficiencies,omitempty"`
}

// AgentHeartbeat is sent from the agent session periodically
type AgentHeartbeat struct {
	Type      string      `json:"type"` // "heartbeat"
	AgentID   string      `json:"agentId"`
	TenantID  string      `json:"tenantId"`
	Status    AgentStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// AgentStatusChange is sent on explicit status transitions (online/away/...)
type AgentStatusChange struct {
	Type      string      `json:"type"` // "status_change"
	AgentID   string      `json:"agentId"`
	TenantID  string      `json:"tenantId"`
	NewStatus AgentStatus `json:"newStatus"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConversationAssign is pushed to an agent session when a conversation is routed
type ConversationAssign struct {
	Type           string    `json:"type"` // "conversation_assign"
	AgentID        string    `json:"agentId"`
	ConversationID string    `json:"conversationId"`
	TenantID       string    `json:"tenantId"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationClose is sent from the agent session when a conversation ends
type ConversationClose struct {
	Type           string    `json:"type"` // "conversation_close"
	AgentID        string    `json:"agentId"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	Outcome        Outcome   `json:"outcome"`
	Satisfaction   float64   `json:"satisfaction,omitempty"` // 1..5, 0 when not rated
	Timestamp      time.Time `json:"timestamp"`
}

// ServerAck is sent back to an agent session as acknowledgment
type ServerAck struct {
	Type    string `json:"type"` // "ack"
	AgentID string `json:"agentId"`
}

// ForceDisconnect is pushed to an agent session to force logout
type ForceDisconnect struct {
	Type    string `json:"type"` // "force_disconnect"
	AgentID string `json:"agentId"`
}
