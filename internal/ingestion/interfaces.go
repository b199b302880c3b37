package ingestion

import (
	"context"

	"github.com/relaydesk/backend/internal/types"
)

// EventProcessor processes agent session events from any source (the
// WebSocket hub, a chat-platform adapter, test fixtures)
type EventProcessor interface {
	ProcessRegister(reg *types.AgentRegister)
	ProcessHeartbeat(hb *types.AgentHeartbeat)
	ProcessStatusChange(sc *types.AgentStatusChange)
	ProcessClose(cc *types.ConversationClose)
	ProcessDisconnect(tenantID, agentID string)
}

// EventSource represents a source of agent session events
type EventSource interface {
	// Start begins receiving events and forwarding them to the processor
	Start(ctx context.Context, processor EventProcessor) error

	// SendToAgent sends a message to a specific agent by ID
	SendToAgent(agentID string, message []byte) bool

	// AgentCount returns the number of connected agents
	AgentCount() int
}
