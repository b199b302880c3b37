package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

func newTestRegistry() *Registry {
	return NewRegistry("tenant-1", zerolog.Nop())
}

func onlineAgent(id string, maxConcurrent int) types.Agent {
	return types.Agent{
		ID:            id,
		Status:        types.StatusOnline,
		MaxConcurrent: maxConcurrent,
		Proficiencies: map[string]int{"billing": 3},
	}
}

func TestReserveRespectsCapacity(t *testing.T) {
	r := newTestRegistry()
	r.Register(onlineAgent("agent-1", 2))

	if err := r.Reserve("agent-1"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := r.Reserve("agent-1"); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if err := r.Reserve("agent-1"); err != ErrNoCapacity {
		t.Fatalf("expected ErrNoCapacity, got %v", err)
	}

	agent, _ := r.Get("agent-1")
	if agent.CurrentActive != 2 {
		t.Errorf("expected current active 2, got %d", agent.CurrentActive)
	}
}

func TestReserveConcurrentNeverOverbooks(t *testing.T) {
	r := newTestRegistry()
	r.Register(onlineAgent("agent-1", 3))

	var wg sync.WaitGroup
	wins := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Reserve("agent-1") == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 3 {
		t.Errorf("expected exactly 3 successful reserves, got %d", won)
	}
	agent, _ := r.Get("agent-1")
	if agent.CurrentActive != 3 {
		t.Errorf("expected current active 3, got %d", agent.CurrentActive)
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	r := newTestRegistry()
	r.Register(onlineAgent("agent-1", 1))

	r.Release("agent-1")
	agent, _ := r.Get("agent-1")
	if agent.CurrentActive != 0 {
		t.Errorf("expected active count clamped at 0, got %d", agent.CurrentActive)
	}
}

func TestAvailableFiltersByTagAndOverflow(t *testing.T) {
	r := newTestRegistry()
	r.Register(types.Agent{
		ID: "skilled", Status: types.StatusOnline, MaxConcurrent: 2,
		Proficiencies: map[string]int{"billing": 4},
	})
	r.Register(types.Agent{
		ID: "overflow", Status: types.StatusOnline, MaxConcurrent: 2,
		AcceptsOverflow: true,
		Proficiencies:   map[string]int{"shipping": 2},
	})
	r.Register(types.Agent{
		ID: "unrelated", Status: types.StatusOnline, MaxConcurrent: 2,
		Proficiencies: map[string]int{"shipping": 2},
	})
	r.Register(types.Agent{
		ID: "offline", Status: types.StatusOffline, MaxConcurrent: 2,
		Proficiencies: map[string]int{"billing": 5},
	})

	required := []types.DetectedTag{{TagID: "billing", Confidence: 0.8}}
	candidates := r.Available(required)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	byID := make(map[string]types.Candidate)
	for _, c := range candidates {
		byID[c.Agent.ID] = c
	}
	if c, ok := byID["skilled"]; !ok || c.Overflow {
		t.Errorf("expected skilled as non-overflow candidate, got %+v", c)
	}
	if c, ok := byID["overflow"]; !ok || !c.Overflow {
		t.Errorf("expected overflow agent flagged as overflow, got %+v", c)
	}
}

func TestAvailableExcludesFullAgents(t *testing.T) {
	r := newTestRegistry()
	r.Register(onlineAgent("agent-1", 1))
	if err := r.Reserve("agent-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if got := r.Available(nil); len(got) != 0 {
		t.Errorf("expected no candidates when agent is at capacity, got %d", len(got))
	}
}

func TestHeartbeatStatusTransition(t *testing.T) {
	r := newTestRegistry()
	agent := onlineAgent("agent-1", 1)
	agent.Status = types.StatusAway
	r.Register(agent)

	cameOnline, err := r.Heartbeat("agent-1", types.StatusOnline)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !cameOnline {
		t.Error("expected came-online signal on away -> online")
	}

	cameOnline, _ = r.Heartbeat("agent-1", types.StatusOnline)
	if cameOnline {
		t.Error("expected no came-online signal when already online")
	}

	if _, err := r.Heartbeat("ghost", types.StatusOnline); err != ErrUnknownAgent {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestCheckStaleMarksOffline(t *testing.T) {
	r := newTestRegistry()
	r.Register(onlineAgent("agent-1", 1))

	// Backdate the heartbeat past the threshold
	r.mu.Lock()
	r.agents["agent-1"].LastHeartbeat = time.Now().Add(-2 * StaleThreshold)
	r.mu.Unlock()

	stale := r.CheckStale()
	if len(stale) != 1 || stale[0] != "agent-1" {
		t.Fatalf("expected agent-1 stale, got %v", stale)
	}
	agent, _ := r.Get("agent-1")
	if agent.Status != types.StatusOffline {
		t.Errorf("expected offline after stale check, got %s", agent.Status)
	}
}

func TestRegisterPreservesLoad(t *testing.T) {
	r := newTestRegistry()
	r.Register(onlineAgent("agent-1", 2))
	if err := r.Reserve("agent-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	r.Register(onlineAgent("agent-1", 3))
	agent, _ := r.Get("agent-1")
	if agent.CurrentActive != 1 {
		t.Errorf("expected load preserved across re-register, got %d", agent.CurrentActive)
	}
	if agent.MaxConcurrent != 3 {
		t.Errorf("expected updated capacity 3, got %d", agent.MaxConcurrent)
	}
}
