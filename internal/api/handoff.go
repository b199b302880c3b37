package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/relaydesk/backend/internal/auth"
	"github.com/relaydesk/backend/internal/engine"
	"github.com/relaydesk/backend/internal/queue"
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// HandoffHandler provides the REST surface the bot layer calls when a
// conversation escalates to a human agent
type HandoffHandler struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewHandoffHandler creates a new HandoffHandler
func NewHandoffHandler(eng *engine.Engine, logger zerolog.Logger) *HandoffHandler {
	return &HandoffHandler{
		engine: eng,
		logger: logger.With().Str("component", "handoff_handler").Logger(),
	}
}

// requireTenant verifies the caller's claims cover the tenant in the URL.
// Returns the tenant ID, or "" after writing the error response.
func requireTenant(w http.ResponseWriter, r *http.Request) string {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		http.Error(w, `{"error":"tenantId is required"}`, http.StatusBadRequest)
		return ""
	}
	if claims, ok := auth.GetUserFromContext(r.Context()); ok && !claims.IsTenantAllowed(tenantID) {
		http.Error(w, `{"error":"tenant access denied"}`, http.StatusForbidden)
		return ""
	}
	return tenantID
}

// Submit handles POST /api/tenants/{tenantId}/conversations
func (h *HandoffHandler) Submit(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}

	var req struct {
		Text     string `json:"text"`
		Priority int    `json:"priority,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}

	conv, err := h.engine.Submit(tenantID, req.Text, req.Priority)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			// Back-pressure signal for the bot layer
			http.Error(w, `{"error":"queue is full"}`, http.StatusServiceUnavailable)
		case errors.Is(err, engine.ErrTenantNotFound):
			http.Error(w, `{"error":"tenant not found"}`, http.StatusNotFound)
		default:
			h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to submit conversation")
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conv)
}

// AppendMessage handles POST /api/tenants/{tenantId}/conversations/{conversationId}/messages
func (h *HandoffHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	conversationID := chi.URLParam(r, "conversationId")

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}

	if err := h.engine.AppendMessage(tenantID, conversationID, req.Text); err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "appended"})
}

// GetConversation handles GET /api/tenants/{tenantId}/conversations/{conversationId}
func (h *HandoffHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	conversationID := chi.URLParam(r, "conversationId")

	conv, err := h.engine.Conversation(tenantID, conversationID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// EstimateWait handles GET /api/tenants/{tenantId}/conversations/{conversationId}/wait
func (h *HandoffHandler) EstimateWait(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	conversationID := chi.URLParam(r, "conversationId")

	estimate, err := h.engine.EstimateWait(tenantID, conversationID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]float64{"estimatedWaitSeconds": estimate.Seconds()})
}

// Close handles POST /api/tenants/{tenantId}/conversations/{conversationId}/close.
// Used by the customer side (abandonment) and by REST-driven agent UIs.
func (h *HandoffHandler) Close(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	conversationID := chi.URLParam(r, "conversationId")

	var req struct {
		Outcome      types.Outcome `json:"outcome"`
		Satisfaction float64       `json:"satisfaction,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	switch req.Outcome {
	case types.OutcomeResolved, types.OutcomeAbandoned, types.OutcomeTransferred:
	default:
		http.Error(w, `{"error":"unknown outcome"}`, http.StatusBadRequest)
		return
	}

	if err := h.engine.CloseConversation(tenantID, conversationID, req.Outcome, req.Satisfaction); err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message":        "conversation closed",
		"conversationId": conversationID,
	})
}

// writeEngineError maps engine lookup errors to HTTP status codes
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrTenantNotFound):
		http.Error(w, `{"error":"tenant not found"}`, http.StatusNotFound)
	case errors.Is(err, engine.ErrConversationNotFound):
		http.Error(w, `{"error":"conversation not found"}`, http.StatusNotFound)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
