package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/relaydesk/backend/internal/auth"
	"github.com/relaydesk/backend/internal/engine"
	"github.com/relaydesk/backend/internal/storage"
	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
)

// AdminHandler handles tenant and tag administration
type AdminHandler struct {
	engine *engine.Engine
	store  storage.Store
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(eng *engine.Engine, store storage.Store, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		engine: eng,
		store:  store,
		logger: logger,
	}
}

// RequireAdmin middleware ensures only users with the admin role pass
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || !auth.HasRole(claims, "admin") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSupervisorOrAdmin middleware ensures only supervisors or admins pass
func RequireSupervisorOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || (claims.Role != "admin" && claims.Role != "supervisor") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"supervisor or admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RegisterTenant handles POST /api/admin/tenants
func (h *AdminHandler) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	var cfg types.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if cfg.MaxQueueSize == 0 && cfg.MaxWaitMinutes == 0 && cfg.AssignmentMethod == "" {
		// Only the tenant ID supplied: fill in defaults
		cfg = types.DefaultTenantConfig(cfg.TenantID)
	}

	if _, err := h.engine.RegisterTenant(cfg); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	h.logger.Info().Str("tenant_id", cfg.TenantID).Msg("tenant registered via admin")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(cfg)
}

// GetTenant handles GET /api/admin/tenants/{tenantId}
func (h *AdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	t, err := h.engine.Tenant(tenantID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t.Config)
}

// GetQueueSnapshot handles GET /api/tenants/{tenantId}/queue
func (h *AdminHandler) GetQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	t, err := h.engine.Tenant(tenantID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t.Snapshot(time.Now()))
}

// PutTag handles PUT /api/tenants/{tenantId}/tags/{tagId}
func (h *AdminHandler) PutTag(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	tagID := chi.URLParam(r, "tagId")

	t, err := h.engine.Tenant(tenantID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var tag types.Tag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	tag.ID = tagID

	if err := t.Catalog.Put(tag); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	h.logger.Info().Str("tenant_id", tenantID).Str("tag_id", tagID).Msg("tag updated via admin")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tag)
}

// ListTags handles GET /api/tenants/{tenantId}/tags
func (h *AdminHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	t, err := h.engine.Tenant(tenantID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t.Catalog.List())
}

// DeleteTag handles DELETE /api/tenants/{tenantId}/tags/{tagId}
func (h *AdminHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	tenantID := requireTenant(w, r)
	if tenantID == "" {
		return
	}
	tagID := chi.URLParam(r, "tagId")

	t, err := h.engine.Tenant(tenantID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if !t.Catalog.Remove(tagID) {
		http.Error(w, `{"error":"tag not found"}`, http.StatusNotFound)
		return
	}

	h.logger.Info().Str("tenant_id", tenantID).Str("tag_id", tagID).Msg("tag removed via admin")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "tag removed", "tagId": tagID})
}

// WipeDynamo truncates all DynamoDB tables
func (h *AdminHandler) WipeDynamo(w http.ResponseWriter, r *http.Request) {
	if err := h.store.TruncateAll(); err != nil {
		h.logger.Error().Err(err).Msg("failed to truncate DynamoDB tables")
		http.Error(w, fmt.Sprintf(`{"error":"failed to truncate: %s"}`, err), http.StatusInternalServerError)
		return
	}

	h.logger.Info().Msg("DynamoDB tables truncated")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "DynamoDB tables truncated",
	})
}
