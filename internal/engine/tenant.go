package engine

import (
	"sync"
	"time"

	"github.com/relaydesk/backend/internal/performance"
	"github.com/relaydesk/backend/internal/queue"
	"github.com/relaydesk/backend/internal/registry"
	"github.com/relaydesk/backend/internal/scoring"
	"github.com/relaydesk/backend/internal/tagging"
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// Tenant bundles one tenant's routing state. The mutex is the single
// mutual-exclusion boundary for queue mutation and assignment bookkeeping;
// the registry serializes capacity internally, and scoring runs outside
// the lock against snapshots. Tenants share nothing, so cross-tenant
// parallelism is unconstrained.
type Tenant struct {
	Config   types.TenantConfig
	Catalog  *tagging.Catalog
	Registry *registry.Registry
	Queue    *queue.TenantQueue
	Perf     *performance.Store

	strategy scoring.Strategy
	active   map[string]*types.Conversation // conversationID -> assigned conversation

	mu      sync.Mutex
	trigger chan struct{}
	halted  bool
	logger  zerolog.Logger
}

func newTenant(cfg types.TenantConfig, logger zerolog.Logger) *Tenant {
	perf := performance.NewStore(cfg.TenantID)
	return &Tenant{
		Config:   cfg,
		Catalog:  tagging.NewCatalog(cfg.TenantID),
		Registry: registry.NewRegistry(cfg.TenantID, logger),
		Queue:    queue.NewTenantQueue(cfg.TenantID, cfg.MaxQueueSize),
		Perf:     perf,
		strategy: scoring.ForMethod(cfg.AssignmentMethod, perf),
		active:   make(map[string]*types.Conversation),
		trigger:  make(chan struct{}, 1),
		logger:   logger.With().Str("component", "tenant").Str("tenant_id", cfg.TenantID).Logger(),
	}
}

// Trigger wakes the tenant's routing loop without blocking; coalesces
// with a pending wakeup.
func (t *Tenant) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// Halted reports whether routing has been stopped by an invariant violation
func (t *Tenant) Halted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.halted
}

// halt stops the tenant's routing loop permanently. Called on detected
// data corruption; continuing to route would compound the damage.
func (t *Tenant) halt(reason string) {
	t.mu.Lock()
	t.halted = true
	t.mu.Unlock()
	t.logger.Error().Str("reason", reason).Msg("invariant violation, tenant routing halted")
}

// maxWait returns the abandonment timeout from tenant config
func (t *Tenant) maxWait() time.Duration {
	return time.Duration(t.Config.MaxWaitMinutes) * time.Minute
}

// ActiveCount returns the number of currently assigned conversations
func (t *Tenant) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Snapshot summarizes the tenant queue for monitoring
func (t *Tenant) Snapshot(now time.Time) types.QueueSnapshot {
	available := t.Registry.OnlineCount()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Queue.Snapshot(len(t.active), available, now)
}
