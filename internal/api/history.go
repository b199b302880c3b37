package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/relaydesk/backend/internal/storage"
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// HistoryHandler provides REST endpoints for historical routing data
type HistoryHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(store storage.Store, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger.With().Str("component", "history_handler").Logger(),
	}
}

// GetAgentPerformance returns per-tag performance records for the given agent
// GET /api/agents/{agentId}/performance
func (h *HistoryHandler) GetAgentPerformance(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	records, err := h.store.GetAgentPerformance(agentID)
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to get agent performance")
		http.Error(w, "failed to retrieve performance", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.PerformanceRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// GetAgentConversations returns conversation records for the given agent on a specific date
// GET /api/agents/{agentId}/conversations?date=YYYY-MM-DD
func (h *HistoryHandler) GetAgentConversations(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	records, err := h.store.GetAgentConversationsByDate(agentID, date)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("date", date).
			Msg("failed to get agent conversations")
		http.Error(w, "failed to retrieve conversations", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.ConversationRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// GetRoutingEntries returns the routing log for a specific date
// GET /api/routing-log?date=YYYY-MM-DD
func (h *HistoryHandler) GetRoutingEntries(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	entries, err := h.store.GetRoutingEntries(date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", date).Msg("failed to get routing entries")
		http.Error(w, "failed to retrieve routing log", http.StatusInternalServerError)
		return
	}

	if entries == nil {
		entries = []types.RoutingLogEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetConversationRecords returns all conversation records for a specific date
// GET /api/conversations?date=YYYY-MM-DD
func (h *HistoryHandler) GetConversationRecords(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	records, err := h.store.GetConversationRecords(date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", date).Msg("failed to get conversation records")
		http.Error(w, "failed to retrieve conversations", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.ConversationRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
