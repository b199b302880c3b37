package ingestion

import (
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// Router is the routing engine surface the processor drives
type Router interface {
	RegisterAgent(tenantID string, agent types.Agent, acceptsOverflow *bool) error
	Heartbeat(tenantID, agentID string, status types.AgentStatus) error
	CloseConversation(tenantID, conversationID string, outcome types.Outcome, satisfaction float64) error
}

// DefaultProcessor implements EventProcessor by delegating to the routing engine
type DefaultProcessor struct {
	router Router
	logger zerolog.Logger
}

// NewDefaultProcessor creates a new DefaultProcessor
func NewDefaultProcessor(router Router, logger zerolog.Logger) *DefaultProcessor {
	return &DefaultProcessor{
		router: router,
		logger: logger.With().Str("component", "ingestion").Logger(),
	}
}

func (p *DefaultProcessor) ProcessRegister(reg *types.AgentRegister) {
	err := p.router.RegisterAgent(reg.TenantID, types.Agent{
		ID:            reg.AgentID,
		Name:          reg.Name,
		Status:        reg.Status,
		MaxConcurrent: reg.MaxConcurrent,
		Proficiencies: reg.Proficiencies,
	}, reg.AcceptsOverflow)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("agent_id", reg.AgentID).
			Str("tenant_id", reg.TenantID).
			Msg("agent registration rejected")
		return
	}

	p.logger.Debug().
		Str("agent_id", reg.AgentID).
		Str("tenant_id", reg.TenantID).
		Str("status", string(reg.Status)).
		Msg("agent registered via processor")
}

func (p *DefaultProcessor) ProcessHeartbeat(hb *types.AgentHeartbeat) {
	if err := p.router.Heartbeat(hb.TenantID, hb.AgentID, hb.Status); err != nil {
		p.logger.Debug().Err(err).Str("agent_id", hb.AgentID).Msg("heartbeat for unknown agent")
	}
}

func (p *DefaultProcessor) ProcessStatusChange(sc *types.AgentStatusChange) {
	if err := p.router.Heartbeat(sc.TenantID, sc.AgentID, sc.NewStatus); err != nil {
		p.logger.Debug().Err(err).Str("agent_id", sc.AgentID).Msg("status change for unknown agent")
		return
	}

	p.logger.Debug().
		Str("agent_id", sc.AgentID).
		Str("new_status", string(sc.NewStatus)).
		Msg("agent status change via processor")
}

func (p *DefaultProcessor) ProcessClose(cc *types.ConversationClose) {
	err := p.router.CloseConversation(cc.TenantID, cc.ConversationID, cc.Outcome, cc.Satisfaction)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("conversation_id", cc.ConversationID).
			Str("agent_id", cc.AgentID).
			Msg("conversation close rejected")
		return
	}

	p.logger.Debug().
		Str("agent_id", cc.AgentID).
		Str("conversation_id", cc.ConversationID).
		Str("outcome", string(cc.Outcome)).
		Msg("conversation closed via processor")
}

// ProcessDisconnect marks an agent offline when its session drops without
// a clean status change
func (p *DefaultProcessor) ProcessDisconnect(tenantID, agentID string) {
	if err := p.router.Heartbeat(tenantID, agentID, types.StatusOffline); err != nil {
		p.logger.Debug().Err(err).Str("agent_id", agentID).Msg("disconnect for unknown agent")
	}
}
