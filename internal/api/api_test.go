package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/relaydesk/backend/internal/auth"
	"github.com/relaydesk/backend/internal/engine"
	"github.com/relaydesk/backend/internal/storage"
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

func setupTestAPI(t *testing.T) (*engine.Engine, *chi.Mux) {
	t.Helper()
	logger := zerolog.Nop()

	eng := engine.New(logger)
	cfg := types.DefaultTenantConfig("tenant-1")
	cfg.MaxQueueSize = 5
	tenant, err := eng.RegisterTenant(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := tenant.Catalog.Put(types.Tag{
		ID:             "billing",
		Name:           "Billing",
		Keywords:       []string{"invoice", "refund"},
		PriorityWeight: 3,
	}); err != nil {
		t.Fatal(err)
	}

	handoff := NewHandoffHandler(eng, logger)
	agents := NewAgentsHandler(eng, nil, logger)
	admin := NewAdminHandler(eng, storage.NewNoopStore(), logger)
	history := NewHistoryHandler(storage.NewNoopStore(), logger)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Route("/tenants/{tenantId}", func(r chi.Router) {
			r.Post("/conversations", handoff.Submit)
			r.Get("/conversations/{conversationId}", handoff.GetConversation)
			r.Post("/conversations/{conversationId}/messages", handoff.AppendMessage)
			r.Get("/conversations/{conversationId}/wait", handoff.EstimateWait)
			r.Post("/conversations/{conversationId}/close", handoff.Close)
			r.Get("/agents", agents.GetRoster)
			r.Post("/agents/roster", agents.BootstrapRoster)
			r.Put("/agents/{agentId}/capacity", agents.SetCapacity)
			r.Get("/queue", admin.GetQueueSnapshot)
			r.Get("/tags", admin.ListTags)
			r.Put("/tags/{tagId}", admin.PutTag)
			r.Delete("/tags/{tagId}", admin.DeleteTag)
		})
		r.Post("/admin/tenants", admin.RegisterTenant)
		r.Get("/agents/{agentId}/performance", history.GetAgentPerformance)
		r.Get("/routing-log", history.GetRoutingEntries)
	})
	return eng, router
}

func submitConversation(t *testing.T, router *chi.Mux, text string) types.Conversation {
	t.Helper()
	payload, _ := json.Marshal(map[string]interface{}{"text": text})
	req := httptest.NewRequest(http.MethodPost, "/api/tenants/tenant-1/conversations", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var conv types.Conversation
	if err := json.NewDecoder(w.Body).Decode(&conv); err != nil {
		t.Fatal(err)
	}
	return conv
}

func TestSubmitConversation(t *testing.T) {
	_, router := setupTestAPI(t)

	conv := submitConversation(t, router, "I need a refund for this invoice")

	if conv.ID == "" {
		t.Error("expected conversation ID to be set")
	}
	if len(conv.DetectedTags) == 0 {
		t.Error("expected billing tag to be detected")
	}
	if conv.Priority != 3 {
		t.Errorf("expected priority 3 from tag weight, got %d", conv.Priority)
	}
}

func TestSubmitMissingText(t *testing.T) {
	_, router := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tenants/tenant-1/conversations", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitUnknownTenant(t *testing.T) {
	_, router := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tenants/nope/conversations", bytes.NewBufferString(`{"text":"help"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	_, router := setupTestAPI(t)

	// MaxQueueSize is 5 in the test tenant
	for i := 0; i < 5; i++ {
		submitConversation(t, router, "help me")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tenants/tenant-1/conversations", bytes.NewBufferString(`{"text":"help"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when queue is full, got %d", w.Code)
	}
}

func TestGetConversationAndWait(t *testing.T) {
	_, router := setupTestAPI(t)
	conv := submitConversation(t, router, "hello")

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/tenant-1/conversations/"+conv.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tenants/tenant-1/conversations/"+conv.ID+"/wait", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]float64
	json.NewDecoder(w.Body).Decode(&body)
	if _, ok := body["estimatedWaitSeconds"]; !ok {
		t.Error("expected estimatedWaitSeconds in response")
	}
}

func TestCloseRejectsUnknownOutcome(t *testing.T) {
	_, router := setupTestAPI(t)
	conv := submitConversation(t, router, "hello")

	req := httptest.NewRequest(http.MethodPost, "/api/tenants/tenant-1/conversations/"+conv.ID+"/close",
		bytes.NewBufferString(`{"outcome":"vanished"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCloseAbandonedWhileQueued(t *testing.T) {
	eng, router := setupTestAPI(t)
	conv := submitConversation(t, router, "hello")

	req := httptest.NewRequest(http.MethodPost, "/api/tenants/tenant-1/conversations/"+conv.ID+"/close",
		bytes.NewBufferString(`{"outcome":"abandoned"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if _, err := eng.Conversation("tenant-1", conv.ID); err == nil {
		t.Error("expected conversation to be removed after close")
	}
}

func TestBootstrapRosterAndGet(t *testing.T) {
	_, router := setupTestAPI(t)

	roster := `[{"agentId":"agent-1","name":"Ada","maxConcurrent":2,"proficiencies":{"billing":4}}]`
	req := httptest.NewRequest(http.MethodPost, "/api/tenants/tenant-1/agents/roster", bytes.NewBufferString(roster))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result map[string]int
	json.NewDecoder(w.Body).Decode(&result)
	if result["registered"] != 1 {
		t.Fatalf("expected 1 registered, got %d", result["registered"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tenants/tenant-1/agents", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var agents []types.Agent
	if err := json.NewDecoder(w.Body).Decode(&agents); err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 || agents[0].ID != "agent-1" {
		t.Fatalf("unexpected roster: %+v", agents)
	}
	if agents[0].Status != types.StatusOffline {
		t.Errorf("expected bootstrapped agent to be offline, got %s", agents[0].Status)
	}
}

func TestSetCapacityUnknownAgent(t *testing.T) {
	_, router := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodPut, "/api/tenants/tenant-1/agents/ghost/capacity",
		bytes.NewBufferString(`{"maxConcurrent":3}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestTagCRUD(t *testing.T) {
	_, router := setupTestAPI(t)

	// Add a second tag
	tag := `{"name":"Shipping","keywords":["package","delivery"],"priorityWeight":2}`
	req := httptest.NewRequest(http.MethodPut, "/api/tenants/tenant-1/tags/shipping", bytes.NewBufferString(tag))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// List should contain both tags
	req = httptest.NewRequest(http.MethodGet, "/api/tenants/tenant-1/tags", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var tags []types.Tag
	json.NewDecoder(w.Body).Decode(&tags)
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}

	// Delete one
	req = httptest.NewRequest(http.MethodDelete, "/api/tenants/tenant-1/tags/shipping", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// Deleting again is a 404
	req = httptest.NewRequest(http.MethodDelete, "/api/tenants/tenant-1/tags/shipping", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRegisterTenantViaAdmin(t *testing.T) {
	eng, router := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/tenants", bytes.NewBufferString(`{"tenantId":"tenant-2"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := eng.Tenant("tenant-2"); err != nil {
		t.Errorf("expected tenant-2 to be registered: %v", err)
	}
}

func TestQueueSnapshotEndpoint(t *testing.T) {
	_, router := setupTestAPI(t)
	submitConversation(t, router, "hello")

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/tenant-1/queue", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snapshot types.QueueSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.TenantID != "tenant-1" || snapshot.WaitingCount != 1 {
		t.Errorf("unexpected snapshot: %+v", snapshot)
	}
}

func TestHistoryEndpointsReturnEmptyArrays(t *testing.T) {
	_, router := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/agents/agent-1/performance", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("expected empty array, got %q", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/routing-log?date=2025-01-15", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRoutingLogRequiresDate(t *testing.T) {
	_, router := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/routing-log", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTenantAccessDenied(t *testing.T) {
	_, router := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/tenant-1/queue", nil)
	claims := &auth.Claims{Email: "agent@other.example", Role: "agent", TenantIDs: []string{"tenant-9"}}
	req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign tenant, got %d", w.Code)
	}
}

func TestRequireAdminMiddleware(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// No claims at all
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without claims, got %d", w.Code)
	}

	// Agent role
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, &auth.Claims{Role: "agent"}))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for agent role, got %d", w.Code)
	}

	// Admin role
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, &auth.Claims{Role: "admin"}))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}
}
