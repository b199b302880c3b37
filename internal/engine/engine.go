package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sync"

	"github.com/google/uuid"
	"github.com/relaydesk/backend/internal/metrics"
	"github.com/relaydesk/backend/internal/tagging"
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// ErrTenantNotFound is returned for operations on unregistered tenants
var ErrTenantNotFound = errors.New("tenant not found")

// ErrConversationNotFound is returned when a conversation is in neither
// the queue nor the active set
var ErrConversationNotFound = errors.New("conversation not found")

// Notifier delivers assignment events to the transport layer so the
// agent's UI gets connected to the conversation
type Notifier interface {
	NotifyAssigned(tenantID, agentID, conversationID string) bool
}

// RoutingLogSink consumes the append-only routing log stream
type RoutingLogSink interface {
	Publish(entry types.RoutingLogEntry)
}

// RecordStore is the subset of storage.Store the engine persists through
type RecordStore interface {
	SaveRoutingEntry(entry types.RoutingLogEntry) error
	SaveConversationRecord(record types.ConversationRecord) error
	SavePerformanceRecord(record types.PerformanceRecord) error
}

// Engine hosts the routing state and control loop for every tenant
type Engine struct {
	tenants  map[string]*Tenant
	mu       sync.RWMutex
	tick     time.Duration
	notifier Notifier
	sink     RoutingLogSink
	store    RecordStore
	ctx      context.Context
	logger   zerolog.Logger
}

// Option configures the engine at construction
type Option func(*Engine)

// WithNotifier sets the assignment event consumer
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithSink sets the routing log stream consumer
func WithSink(s RoutingLogSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithStore sets the persistence store
func WithStore(s RecordStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithTick overrides the safety-net routing interval
func WithTick(d time.Duration) Option {
	return func(e *Engine) { e.tick = d }
}

// New creates a routing engine; tenants are registered afterwards
func New(logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		tenants: make(map[string]*Tenant),
		tick:    2 * time.Second,
		logger:  logger.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNotifier wires the assignment event consumer after construction.
// The transport layer depends on the engine, so it cannot exist yet when
// the engine is created.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// Start attaches the engine lifecycle context. Tenants registered before
// or after Start get their routing loop bound to this context.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	tenants := make([]*Tenant, 0, len(e.tenants))
	for _, t := range e.tenants {
		tenants = append(tenants, t)
	}
	e.mu.Unlock()

	for _, t := range tenants {
		go e.runTenant(ctx, t)
	}
	e.logger.Info().Int("tenants", len(tenants)).Msg("routing engine started")
}

// RegisterTenant validates the config and creates the tenant's routing state
func (e *Engine) RegisterTenant(cfg types.TenantConfig) (*Tenant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if _, exists := e.tenants[cfg.TenantID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("tenant %s already registered", cfg.TenantID)
	}
	t := newTenant(cfg, e.logger)
	e.tenants[cfg.TenantID] = t
	ctx := e.ctx
	e.mu.Unlock()

	if ctx != nil {
		go e.runTenant(ctx, t)
	}
	e.logger.Info().Str("tenant_id", cfg.TenantID).Str("method", string(cfg.AssignmentMethod)).Msg("tenant registered")
	return t, nil
}

// Tenants returns all registered tenants
func (e *Engine) Tenants() []*Tenant {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tenants := make([]*Tenant, 0, len(e.tenants))
	for _, t := range e.tenants {
		tenants = append(tenants, t)
	}
	return tenants
}

// Tenant returns the routing state for a tenant
func (e *Engine) Tenant(tenantID string) (*Tenant, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// Submit accepts a conversation handed off from the bot layer, detects
// tags, computes priority, and enqueues it. Returns queue.ErrQueueFull
// so the caller can apply its own backpressure.
func (e *Engine) Submit(tenantID, text string, priorityHint int) (*types.Conversation, error) {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return nil, err
	}

	detected := tagging.Detect(text, t.Catalog)
	conv := &types.Conversation{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Priority:     priorityHint + int(t.Catalog.MaxPriorityWeight(detected)),
		DetectedTags: detected,
		QueuedAt:     time.Now(),
		Text:         text,
	}

	// The queue owns conv once enqueued; the caller gets a detached copy
	// so reading it never races the routing loop
	var out types.Conversation
	t.mu.Lock()
	err = t.Queue.Enqueue(conv)
	if err == nil {
		out = *conv
		out.DetectedTags = append([]types.DetectedTag(nil), conv.DetectedTags...)
	}
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	metrics.Get().RecordEnqueued()
	t.logger.Debug().
		Str("conversation_id", out.ID).
		Int("priority", out.Priority).
		Int("detected_tags", len(detected)).
		Msg("conversation enqueued")

	t.Trigger()
	return &out, nil
}

// AppendMessage accumulates user text on a queued conversation. Tags may
// strengthen or change before assignment, so detection re-runs and the
// queue re-ranks.
func (e *Engine) AppendMessage(tenantID, conversationID, text string) error {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	conv, ok := t.Queue.Get(conversationID)
	if !ok {
		t.mu.Unlock()
		return ErrConversationNotFound
	}
	conv.Text += "\n" + text
	full := conv.Text
	t.mu.Unlock()

	// Detection is side-effect free; run it outside the boundary
	detected := tagging.Detect(full, t.Catalog)
	boost := int(t.Catalog.MaxPriorityWeight(detected))

	t.mu.Lock()
	if conv, ok := t.Queue.Get(conversationID); ok {
		oldBoost := int(t.Catalog.MaxPriorityWeight(conv.DetectedTags))
		conv.DetectedTags = detected
		conv.Priority = conv.Priority - oldBoost + boost
		conv.TagsStale = false
		t.Queue.Rerank()
	}
	t.mu.Unlock()

	t.Trigger()
	return nil
}

// RegisterAgent adds or updates an agent in the tenant registry.
// acceptsOverflow nil applies the tenant default; an explicit false opts
// the agent out even when the tenant default is true.
func (e *Engine) RegisterAgent(tenantID string, agent types.Agent, acceptsOverflow *bool) error {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return err
	}
	if agent.MaxConcurrent <= 0 {
		agent.MaxConcurrent = 1
	}
	if acceptsOverflow != nil {
		agent.AcceptsOverflow = *acceptsOverflow
	} else {
		agent.AcceptsOverflow = t.Config.DefaultAcceptsOverflow
	}
	t.Registry.Register(agent)
	if agent.Status == types.StatusOnline {
		t.Trigger()
	}
	return nil
}

// Heartbeat applies an agent liveness/status update; an agent coming
// online is a routing trigger.
func (e *Engine) Heartbeat(tenantID, agentID string, status types.AgentStatus) error {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return err
	}
	cameOnline, err := t.Registry.Heartbeat(agentID, status)
	if err != nil {
		return err
	}
	if cameOnline {
		t.Trigger()
	}
	return nil
}

// SetAgentCapacity applies a capacity change from agent session management
func (e *Engine) SetAgentCapacity(tenantID, agentID string, maxConcurrent int) error {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return err
	}
	if err := t.Registry.SetCapacity(agentID, maxConcurrent); err != nil {
		return err
	}
	t.Trigger()
	return nil
}

// SetAgentProficiencies applies an admin proficiency edit
func (e *Engine) SetAgentProficiencies(tenantID, agentID string, proficiencies map[string]int) error {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return err
	}
	return t.Registry.SetProficiencies(agentID, proficiencies)
}

// CloseConversation handles the terminal event for a conversation: frees
// agent capacity, runs the feedback updater, persists the record, and
// re-queues on transfer-back. Capacity release is a routing trigger.
func (e *Engine) CloseConversation(tenantID, conversationID string, outcome types.Outcome, satisfaction float64) error {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return err
	}
	now := time.Now()

	t.mu.Lock()
	conv, assigned := t.active[conversationID]
	if !assigned {
		// Customer may have left while still waiting
		if queued := t.Queue.Remove(conversationID); queued != nil {
			queued.Status = types.ConversationAbandoned
			queued.ClosedAt = &now
			t.Queue.MarkAbandoned()
			t.mu.Unlock()
			metrics.Get().RecordAbandoned()
			e.persistConversation(t, queued, 0, 0)
			return nil
		}
		t.mu.Unlock()
		return ErrConversationNotFound
	}
	delete(t.active, conversationID)
	t.mu.Unlock()

	agentID := conv.AssignedAgentID
	handleSeconds := 0.0
	if conv.AssignedAt != nil {
		handleSeconds = now.Sub(*conv.AssignedAt).Seconds()
	}
	conv.ClosedAt = &now

	t.Registry.Release(agentID)

	if primary, ok := conv.PrimaryTag(); ok {
		t.Perf.RecordOutcome(agentID, primary.TagID, outcome, handleSeconds, satisfaction, now)
		if e.store != nil {
			if record, ok := t.Perf.Snapshot(agentID, primary.TagID); ok {
				go e.savePerformance(record)
			}
		}
	}

	switch outcome {
	case types.OutcomeTransferred:
		// Transfer-back: conversation returns to the queue at its
		// original priority and waits again.
		conv.Status = types.ConversationQueued
		conv.AssignedAgentID = ""
		conv.AssignedAt = nil
		conv.ClosedAt = nil
		conv.QueuedAt = now
		t.mu.Lock()
		enqueueErr := t.Queue.Enqueue(conv)
		t.mu.Unlock()
		if enqueueErr != nil {
			return fmt.Errorf("re-queue transferred conversation: %w", enqueueErr)
		}
		metrics.Get().RecordTransferred()
	case types.OutcomeAbandoned:
		conv.Status = types.ConversationAbandoned
		t.mu.Lock()
		t.Queue.MarkAbandoned()
		t.mu.Unlock()
		metrics.Get().RecordAbandoned()
		e.persistConversation(t, conv, handleSeconds, satisfaction)
	default:
		conv.Status = types.ConversationResolved
		t.mu.Lock()
		t.Queue.MarkCompleted(handleSeconds)
		t.mu.Unlock()
		metrics.Get().RecordResolved()
		e.persistConversation(t, conv, handleSeconds, satisfaction)
	}

	t.logger.Debug().
		Str("conversation_id", conversationID).
		Str("agent_id", agentID).
		Str("outcome", string(outcome)).
		Float64("handle_seconds", handleSeconds).
		Msg("conversation closed")

	// Freed capacity may unblock the queue
	t.Trigger()
	return nil
}

// EstimateWait returns the coarse wait estimate for a queued conversation
func (e *Engine) EstimateWait(tenantID, conversationID string) (time.Duration, error) {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return 0, err
	}

	online := t.Registry.OnlineCount()
	t.mu.Lock()
	defer t.mu.Unlock()
	conv, ok := t.Queue.Get(conversationID)
	if !ok {
		return 0, ErrConversationNotFound
	}
	return t.Queue.EstimateWait(conv.QueuePosition, online), nil
}

// Conversation returns the current state of a queued or active conversation
func (e *Engine) Conversation(tenantID, conversationID string) (types.Conversation, error) {
	t, err := e.Tenant(tenantID)
	if err != nil {
		return types.Conversation{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if conv, ok := t.Queue.Get(conversationID); ok {
		return *conv, nil
	}
	if conv, ok := t.active[conversationID]; ok {
		return *conv, nil
	}
	return types.Conversation{}, ErrConversationNotFound
}

func (e *Engine) persistConversation(t *Tenant, conv *types.Conversation, handleSeconds, satisfaction float64) {
	if e.store == nil {
		return
	}
	record := conversationToRecord(conv, handleSeconds, satisfaction)
	go func() {
		if err := e.store.SaveConversationRecord(record); err != nil {
			t.logger.Error().Err(err).Str("conversation_id", record.ConversationID).Msg("failed to save conversation record")
		}
	}()
}

func (e *Engine) savePerformance(record types.PerformanceRecord) {
	if err := e.store.SavePerformanceRecord(record); err != nil {
		e.logger.Error().Err(err).
			Str("agent_id", record.AgentID).
			Str("tag_id", record.TagID).
			Msg("failed to save performance record")
	}
}

// conversationToRecord flattens a terminal conversation for persistence
func conversationToRecord(conv *types.Conversation, handleSeconds, satisfaction float64) types.ConversationRecord {
	record := types.ConversationRecord{
		DateKey:        conv.QueuedAt.Format("2006-01-02"),
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		AgentID:        conv.AssignedAgentID,
		Outcome:        string(conv.Status),
		QueuedAt:       conv.QueuedAt.Format(time.RFC3339),
		HandleSeconds:  handleSeconds,
		Satisfaction:   satisfaction,
		Abandoned:      conv.Status == types.ConversationAbandoned,
	}
	if primary, ok := conv.PrimaryTag(); ok {
		record.PrimaryTagID = primary.TagID
	}
	if conv.AssignedAt != nil {
		record.AssignedAt = conv.AssignedAt.Format(time.RFC3339)
		record.WaitSeconds = conv.AssignedAt.Sub(conv.QueuedAt).Seconds()
	}
	if conv.ClosedAt != nil {
		record.ClosedAt = conv.ClosedAt.Format(time.RFC3339)
		if conv.AssignedAt == nil {
			record.WaitSeconds = conv.ClosedAt.Sub(conv.QueuedAt).Seconds()
		}
	}
	return record
}
