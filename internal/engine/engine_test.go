package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/backend/internal/queue"
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// fakeSink collects published routing log entries
type fakeSink struct {
	mu      sync.Mutex
	entries []types.RoutingLogEntry
}

func (f *fakeSink) Publish(entry types.RoutingLogEntry) {
	f.mu.Lock()
	f.entries = append(f.entries, entry)
	f.mu.Unlock()
}

func (f *fakeSink) all() []types.RoutingLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.RoutingLogEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// fakeNotifier records assignment notifications
type fakeNotifier struct {
	mu       sync.Mutex
	assigned []string // conversationID
}

func (f *fakeNotifier) NotifyAssigned(tenantID, agentID, conversationID string) bool {
	f.mu.Lock()
	f.assigned = append(f.assigned, conversationID)
	f.mu.Unlock()
	return true
}

func newTestEngine(t *testing.T, sink *fakeSink) (*Engine, *Tenant) {
	t.Helper()
	opts := []Option{}
	if sink != nil {
		opts = append(opts, WithSink(sink))
	}
	e := New(zerolog.Nop(), opts...)
	tenant, err := e.RegisterTenant(types.DefaultTenantConfig("tenant-1"))
	if err != nil {
		t.Fatalf("register tenant: %v", err)
	}
	return e, tenant
}

func billingTag() types.Tag {
	return types.Tag{
		ID:             "billing",
		Name:           "Billing",
		Keywords:       []string{"invoice", "refund", "charge"},
		PriorityWeight: 3,
	}
}

func onlineAgent(id string, max int, proficiencies map[string]int) types.Agent {
	return types.Agent{
		ID:            id,
		Status:        types.StatusOnline,
		MaxConcurrent: max,
		Proficiencies: proficiencies,
	}
}

func TestSubmitDetectsTagsAndBoostsPriority(t *testing.T) {
	e, tenant := newTestEngine(t, nil)
	if err := tenant.Catalog.Put(billingTag()); err != nil {
		t.Fatal(err)
	}

	tagged, err := e.Submit("tenant-1", "I need a refund for this invoice", 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	plain, err := e.Submit("tenant-1", "hello there", 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(tagged.DetectedTags) != 1 || tagged.DetectedTags[0].TagID != "billing" {
		t.Fatalf("expected billing tag detected, got %+v", tagged.DetectedTags)
	}
	if tagged.Priority != 4 { // hint 1 + weight 3
		t.Errorf("expected boosted priority 4, got %d", tagged.Priority)
	}
	if plain.Priority != 1 {
		t.Errorf("expected plain priority 1, got %d", plain.Priority)
	}
	if tagged.QueuePosition != 1 || plain.QueuePosition != 2 {
		t.Errorf("expected tagged conversation ranked first, got positions %d and %d",
			tagged.QueuePosition, plain.QueuePosition)
	}
}

func TestDrainAssignsAndLogsOnce(t *testing.T) {
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	e, tenant := newTestEngine(t, sink)
	e.notifier = notifier
	tenant.Catalog.Put(billingTag())

	e.RegisterAgent("tenant-1", onlineAgent("agent-1", 2, map[string]int{"billing": 5}), nil)
	conv, _ := e.Submit("tenant-1", "refund my invoice please", 0)

	e.drain(tenant)

	got, err := e.Conversation("tenant-1", conv.ID)
	if err != nil {
		t.Fatalf("conversation lookup: %v", err)
	}
	if got.Status != types.ConversationAssigned || got.AssignedAgentID != "agent-1" {
		t.Fatalf("expected assignment to agent-1, got %+v", got)
	}

	agent, _ := tenant.Registry.Get("agent-1")
	if agent.CurrentActive != 1 {
		t.Errorf("expected active count 1, got %d", agent.CurrentActive)
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one routing entry, got %d", len(entries))
	}
	if entries[0].ConversationID != conv.ID || entries[0].Method != types.MethodAssign {
		t.Errorf("unexpected routing entry %+v", entries[0])
	}
	if len(entries[0].Breakdown) != 1 {
		t.Errorf("expected scoring breakdown in entry, got %d candidates", len(entries[0].Breakdown))
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.assigned) != 1 || notifier.assigned[0] != conv.ID {
		t.Errorf("expected one assignment notification for %s, got %v", conv.ID, notifier.assigned)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	sink := &fakeSink{}
	e, tenant := newTestEngine(t, sink)
	tenant.Catalog.Put(billingTag())
	e.RegisterAgent("tenant-1", onlineAgent("agent-1", 1, map[string]int{"billing": 5}), nil)

	first, _ := e.Submit("tenant-1", "invoice refund", 0)
	second, _ := e.Submit("tenant-1", "another invoice refund", 0)

	// Repeated drains must not assign past the agent's limit
	e.drain(tenant)
	e.drain(tenant)

	agent, _ := tenant.Registry.Get("agent-1")
	if agent.CurrentActive != 1 {
		t.Fatalf("expected active count 1, got %d", agent.CurrentActive)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("expected one routing entry, got %d", len(sink.all()))
	}

	// The freed slot is picked up on the next pass
	if err := e.CloseConversation("tenant-1", first.ID, types.OutcomeResolved, 5.0); err != nil {
		t.Fatalf("close: %v", err)
	}
	e.drain(tenant)

	got, _ := e.Conversation("tenant-1", second.ID)
	if got.Status != types.ConversationAssigned {
		t.Fatalf("expected second conversation assigned after release, got %s", got.Status)
	}
	agent, _ = tenant.Registry.Get("agent-1")
	if agent.CurrentActive != 1 {
		t.Errorf("expected active count back at 1, got %d", agent.CurrentActive)
	}
}

func TestCloseRecordsFeedback(t *testing.T) {
	e, tenant := newTestEngine(t, nil)
	tenant.Catalog.Put(billingTag())
	e.RegisterAgent("tenant-1", onlineAgent("agent-1", 2, map[string]int{"billing": 5}), nil)

	conv, _ := e.Submit("tenant-1", "invoice refund", 0)
	e.drain(tenant)

	if err := e.CloseConversation("tenant-1", conv.ID, types.OutcomeResolved, 4.5); err != nil {
		t.Fatalf("close: %v", err)
	}

	record, ok := tenant.Perf.Snapshot("agent-1", "billing")
	if !ok {
		t.Fatal("expected performance record after resolved close")
	}
	if record.SuccessfulResolutions != 1 || record.SuccessRate <= 0 {
		t.Errorf("expected success credit, got %+v", record)
	}
}

func TestTransferBackRequeues(t *testing.T) {
	e, tenant := newTestEngine(t, nil)
	tenant.Catalog.Put(billingTag())
	e.RegisterAgent("tenant-1", onlineAgent("agent-1", 1, map[string]int{"billing": 5}), nil)

	conv, _ := e.Submit("tenant-1", "invoice refund", 0)
	e.drain(tenant)

	if err := e.CloseConversation("tenant-1", conv.ID, types.OutcomeTransferred, 0); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := e.Conversation("tenant-1", conv.ID)
	if err != nil {
		t.Fatalf("expected conversation back in queue: %v", err)
	}
	if got.Status != types.ConversationQueued || got.AssignedAgentID != "" {
		t.Fatalf("expected requeued conversation, got %+v", got)
	}

	agent, _ := tenant.Registry.Get("agent-1")
	if agent.CurrentActive != 0 {
		t.Errorf("expected capacity released on transfer, got %d", agent.CurrentActive)
	}

	// Transfer does not earn success credit but does count
	record, ok := tenant.Perf.Snapshot("agent-1", "billing")
	if !ok || record.SuccessfulResolutions != 0 || record.TotalConversations != 1 {
		t.Errorf("expected 0/1 feedback after transfer, got %+v", record)
	}
}

func TestOverdueConversationExpires(t *testing.T) {
	e, tenant := newTestEngine(t, nil)

	conv, _ := e.Submit("tenant-1", "anyone there", 0)

	tenant.mu.Lock()
	if queued, ok := tenant.Queue.Get(conv.ID); ok {
		queued.QueuedAt = time.Now().Add(-time.Duration(tenant.Config.MaxWaitMinutes+1) * time.Minute)
	}
	tenant.mu.Unlock()

	e.drain(tenant)

	if _, err := e.Conversation("tenant-1", conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected expired conversation gone, got %v", err)
	}
}

func TestCloseWhileQueuedMarksAbandoned(t *testing.T) {
	e, tenant := newTestEngine(t, nil)

	conv, _ := e.Submit("tenant-1", "never mind", 0)
	if err := e.CloseConversation("tenant-1", conv.ID, types.OutcomeAbandoned, 0); err != nil {
		t.Fatalf("close queued: %v", err)
	}

	if _, err := e.Conversation("tenant-1", conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected abandoned conversation removed, got %v", err)
	}
	snapshot := tenant.Snapshot(time.Now())
	if snapshot.AbandonedCount != 1 {
		t.Errorf("expected abandoned count 1, got %d", snapshot.AbandonedCount)
	}
}

func TestQueueFullBackpressure(t *testing.T) {
	e := New(zerolog.Nop())
	cfg := types.DefaultTenantConfig("tiny")
	cfg.MaxQueueSize = 1
	if _, err := e.RegisterTenant(cfg); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Submit("tiny", "first", 0); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := e.Submit("tiny", "second", 0); !errors.Is(err, queue.ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
}

func TestAppendMessageRerollsTags(t *testing.T) {
	e, tenant := newTestEngine(t, nil)
	tenant.Catalog.Put(billingTag())

	conv, _ := e.Submit("tenant-1", "hello", 0)
	if len(conv.DetectedTags) != 0 {
		t.Fatalf("expected no tags on greeting, got %+v", conv.DetectedTags)
	}

	if err := e.AppendMessage("tenant-1", conv.ID, "I was charged twice, need a refund"); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, _ := e.Conversation("tenant-1", conv.ID)
	if len(got.DetectedTags) == 0 || got.DetectedTags[0].TagID != "billing" {
		t.Fatalf("expected billing detected after follow-up, got %+v", got.DetectedTags)
	}
	if got.Priority != 3 {
		t.Errorf("expected priority boosted to 3, got %d", got.Priority)
	}
}

func TestHoldWhenNoEligibleAgents(t *testing.T) {
	sink := &fakeSink{}
	e, tenant := newTestEngine(t, sink)
	tenant.Catalog.Put(billingTag())

	// Agent knows shipping only and refuses overflow
	e.RegisterAgent("tenant-1", types.Agent{
		ID: "agent-1", Status: types.StatusOnline, MaxConcurrent: 2,
		Proficiencies: map[string]int{"shipping": 4},
	}, nil)
	conv, _ := e.Submit("tenant-1", "invoice refund", 0)

	e.drain(tenant)

	got, _ := e.Conversation("tenant-1", conv.ID)
	if got.Status != types.ConversationQueued {
		t.Fatalf("expected conversation held in queue, got %s", got.Status)
	}
	if len(sink.all()) != 0 {
		t.Errorf("expected no routing entries for hold, got %d", len(sink.all()))
	}
}

func TestUnknownTenant(t *testing.T) {
	e := New(zerolog.Nop())
	if _, err := e.Submit("ghost", "hi", 0); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected tenant not found, got %v", err)
	}
}

func TestAppendMessageConcurrentWithRouting(t *testing.T) {
	e, tenant := newTestEngine(t, nil)
	tenant.Catalog.Put(billingTag())

	// No eligible agents, so routing passes keep re-scoring the same
	// conversation while its tags and priority are being rewritten
	conv, _ := e.Submit("tenant-1", "hello", 0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.drain(tenant)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.AppendMessage("tenant-1", conv.ID, "refund my invoice")
		}
	}()
	wg.Wait()

	got, err := e.Conversation("tenant-1", conv.ID)
	if err != nil {
		t.Fatalf("conversation lookup: %v", err)
	}
	if got.Status != types.ConversationQueued {
		t.Fatalf("expected conversation still queued, got %s", got.Status)
	}
	if len(got.DetectedTags) == 0 || got.DetectedTags[0].TagID != "billing" {
		t.Errorf("expected billing tag after appends, got %+v", got.DetectedTags)
	}
}

func TestSubmitReturnsDetachedConversation(t *testing.T) {
	e, tenant := newTestEngine(t, nil)
	tenant.Catalog.Put(billingTag())
	e.RegisterAgent("tenant-1", onlineAgent("agent-1", 1, map[string]int{"billing": 5}), nil)

	conv, _ := e.Submit("tenant-1", "invoice refund", 0)
	e.drain(tenant)

	// The routing loop assigned the live conversation; the caller's copy
	// is frozen at submit time
	if conv.Status != types.ConversationQueued {
		t.Errorf("expected caller copy to stay queued, got %s", conv.Status)
	}
	got, _ := e.Conversation("tenant-1", conv.ID)
	if got.Status != types.ConversationAssigned {
		t.Errorf("expected live conversation assigned, got %s", got.Status)
	}
}

func TestOverflowOptOutSurvivesTenantDefault(t *testing.T) {
	e := New(zerolog.Nop())
	cfg := types.DefaultTenantConfig("tenant-1")
	cfg.DefaultAcceptsOverflow = true
	tenant, err := e.RegisterTenant(cfg)
	if err != nil {
		t.Fatal(err)
	}

	optOut := false
	if err := e.RegisterAgent("tenant-1", onlineAgent("agent-1", 1, nil), &optOut); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.RegisterAgent("tenant-1", onlineAgent("agent-2", 1, nil), nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	declined, _ := tenant.Registry.Get("agent-1")
	if declined.AcceptsOverflow {
		t.Error("expected explicit opt-out to override the tenant default")
	}
	defaulted, _ := tenant.Registry.Get("agent-2")
	if !defaulted.AcceptsOverflow {
		t.Error("expected unset overflow preference to take the tenant default")
	}
}

func TestTriggerDrivenRoutingLoop(t *testing.T) {
	e, tenant := newTestEngine(t, nil)
	tenant.Catalog.Put(billingTag())
	e.tick = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	e.RegisterAgent("tenant-1", onlineAgent("agent-1", 1, map[string]int{"billing": 5}), nil)
	conv, _ := e.Submit("tenant-1", "invoice refund", 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := e.Conversation("tenant-1", conv.ID)
		if err == nil && got.Status == types.ConversationAssigned {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("conversation was not assigned by the routing loop")
}
