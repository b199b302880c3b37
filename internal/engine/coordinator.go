package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/relaydesk/backend/internal/metrics"
	"github.com/relaydesk/backend/internal/registry"
	"github.com/relaydesk/backend/internal/scoring"
	"github.com/relaydesk/backend/internal/types"
)

// runTenant is the routing coordinator for one tenant. It wakes on routing
// triggers (enqueue, capacity release, agent online) and on a safety-net
// tick that also sweeps stale agents and overdue conversations.
func (e *Engine) runTenant(ctx context.Context, t *Tenant) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	t.logger.Info().Dur("tick", e.tick).Msg("routing loop started")
	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("routing loop stopped")
			return
		case <-t.trigger:
			e.drain(t)
		case <-ticker.C:
			if stale := t.Registry.CheckStale(); len(stale) > 0 {
				t.logger.Warn().Strs("agent_ids", stale).Msg("stale agents marked offline")
			}
			e.drain(t)
		}
	}
}

// drain runs one routing pass: expire overdue conversations, then walk the
// queue in priority order and try to place each waiting conversation.
// A conversation that cannot be placed is skipped, not blocked on, so a
// hard-to-match conversation never starves the rest of the queue.
func (e *Engine) drain(t *Tenant) {
	if t.Halted() {
		return
	}
	now := time.Now()

	t.mu.Lock()
	expired := t.Queue.ExpireOverdue(t.maxWait(), now)
	candidates := t.Queue.Candidates()
	t.mu.Unlock()

	for _, conv := range expired {
		metrics.Get().RecordAbandoned()
		t.logger.Info().
			Str("conversation_id", conv.ID).
			Dur("waited", now.Sub(conv.QueuedAt)).
			Msg("conversation expired in queue")
		e.persistConversation(t, conv, 0, 0)
	}

	for i := range candidates {
		e.tryAssign(t, &candidates[i])
	}
}

// tryAssign runs one scoring pass for a single conversation snapshot. The
// agent pool is snapshotted immediately before scoring so the decision
// reflects the freshest view; the reservation re-checks capacity atomically
// and a lost race falls back to the next-best candidate.
func (e *Engine) tryAssign(t *Tenant, conv *types.Conversation) bool {
	pool := t.Registry.Available(conv.DetectedTags)

	for {
		decision := t.strategy.Select(conv, pool, t.Config.Weights)
		if decision.Hold() {
			metrics.Get().RecordHold()
			t.logger.Debug().
				Str("conversation_id", conv.ID).
				Str("reason", decision.Reason).
				Msg("conversation held")
			return false
		}

		err := t.Registry.Reserve(decision.AgentID)
		if err == nil {
			return e.commitAssignment(t, conv.ID, decision)
		}
		if errors.Is(err, registry.ErrNoCapacity) || errors.Is(err, registry.ErrUnknownAgent) {
			// Another goroutine won this agent's last slot between the
			// snapshot and the reservation; drop the agent and re-score.
			metrics.Get().RecordCapacityRace()
			pool = withoutAgent(pool, decision.AgentID)
			continue
		}
		t.logger.Error().Err(err).Str("agent_id", decision.AgentID).Msg("reserve failed")
		return false
	}
}

// commitAssignment finalizes a won reservation: the conversation must still
// be queued, and must not already be assigned. Both are re-checked under the
// tenant boundary because scoring ran outside it, against a snapshot; the
// live conversation is only touched here, under the lock.
func (e *Engine) commitAssignment(t *Tenant, conversationID string, decision scoring.Decision) bool {
	t.mu.Lock()
	if _, already := t.active[conversationID]; already {
		t.mu.Unlock()
		t.Registry.Release(decision.AgentID)
		t.halt("conversation assigned twice: " + conversationID)
		return false
	}
	conv := t.Queue.Remove(conversationID)
	if conv == nil {
		// Expired or closed while scoring ran; the reservation is returned
		t.mu.Unlock()
		t.Registry.Release(decision.AgentID)
		return false
	}
	assignedAt := time.Now()
	conv.Status = types.ConversationAssigned
	conv.AssignedAgentID = decision.AgentID
	conv.AssignedAt = &assignedAt
	conv.QueuePosition = 0
	t.active[conv.ID] = conv
	waited := assignedAt.Sub(conv.QueuedAt)
	t.Queue.MarkAnswered(waited.Seconds())
	t.mu.Unlock()

	entry := types.RoutingLogEntry{
		DateKey:        assignedAt.Format("2006-01-02"),
		EntryID:        uuid.New().String(),
		ConversationID: conv.ID,
		TenantID:       t.Config.TenantID,
		AgentID:        decision.AgentID,
		Method:         decision.Method,
		Confidence:     decision.Confidence,
		Breakdown:      decision.Breakdown,
		FallbackReason: decision.Reason,
		RoutedAt:       assignedAt,
	}
	e.publishRoutingEntry(t, entry)

	if decision.Method == types.MethodOverflow {
		metrics.Get().RecordOverflowAssigned()
	} else {
		metrics.Get().RecordAssigned()
	}
	t.logger.Info().
		Str("conversation_id", conv.ID).
		Str("agent_id", decision.AgentID).
		Str("method", string(decision.Method)).
		Dur("waited", waited).
		Msg("conversation assigned")

	if e.notifier != nil {
		if !e.notifier.NotifyAssigned(t.Config.TenantID, decision.AgentID, conv.ID) {
			t.logger.Warn().
				Str("agent_id", decision.AgentID).
				Str("conversation_id", conv.ID).
				Msg("assignment notification not delivered")
		}
	}
	return true
}

// publishRoutingEntry fans the audit entry out to the stream and the store.
// Both paths are best-effort; routing never blocks on them.
func (e *Engine) publishRoutingEntry(t *Tenant, entry types.RoutingLogEntry) {
	if e.sink != nil {
		e.sink.Publish(entry)
	}
	if e.store != nil {
		go func() {
			if err := e.store.SaveRoutingEntry(entry); err != nil {
				t.logger.Error().Err(err).Str("entry_id", entry.EntryID).Msg("failed to save routing entry")
			}
		}()
	}
}

func withoutAgent(pool []types.Candidate, agentID string) []types.Candidate {
	out := pool[:0]
	for _, c := range pool {
		if c.Agent.ID != agentID {
			out = append(out, c)
		}
	}
	return out
}
