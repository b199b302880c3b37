package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/relaydesk/backend/internal/api"
	"github.com/relaydesk/backend/internal/auth"
	"github.com/relaydesk/backend/internal/config"
	"github.com/relaydesk/backend/internal/engine"
	"github.com/relaydesk/backend/internal/ingestion"
	"github.com/relaydesk/backend/internal/metrics"
	"github.com/relaydesk/backend/internal/monitor"
	"github.com/relaydesk/backend/internal/storage"
	"github.com/relaydesk/backend/internal/stream"
	"github.com/relaydesk/backend/internal/types"
	"github.com/relaydesk/backend/internal/websocket"
	"github.com/relaydesk/backend/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Dur("routing_tick", cfg.RoutingTick).
		Msg("starting RelayDesk routing server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create persistence store (DynamoDB or noop, per DYNAMO_MODE)
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create storage")
	}

	// Create routing log stream (Kafka when brokers are configured)
	var sink engine.RoutingLogSink
	streamCfg := stream.LoadConfig()
	if streamCfg.Enabled {
		publisher := stream.NewPublisher(ctx, streamCfg, log.Logger)
		defer publisher.Close()
		sink = publisher
	} else {
		log.Info().Msg("KAFKA_BROKERS not set, routing log stream disabled")
		sink = stream.NoopPublisher{}
	}

	// Create routing engine
	eng := engine.New(log.Logger,
		engine.WithTick(cfg.RoutingTick),
		engine.WithStore(store),
		engine.WithSink(sink),
	)

	// Register tenants from config dir, or a default tenant
	if err := bootstrapTenants(eng, cfg.TenantConfigDir); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap tenants")
	}

	// Create agent event pipeline: WebSocket hub feeds the processor,
	// the processor drives the engine
	processor := ingestion.NewDefaultProcessor(eng, log.Logger)
	agentHub := websocket.NewAgentHub(processor, log.Logger)
	eng.SetNotifier(agentHub)
	go agentHub.Run()

	eng.Start(ctx)

	// Create dashboard WebSocket hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	// Create queue monitor broadcasting snapshots to dashboards
	broadcaster := monitor.NewBroadcaster(eng, hub, cfg.SnapshotPeriod, log.Logger)
	go broadcaster.Start(ctx)

	// Create WebSocket handlers
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)
	agentWSHandler := websocket.NewAgentHandler(agentHub, log.Logger)

	// Create REST handlers
	handoffHandler := api.NewHandoffHandler(eng, log.Logger)
	agentsHandler := api.NewAgentsHandler(eng, agentHub, log.Logger)
	adminHandler := api.NewAdminHandler(eng, store, log.Logger)
	historyHandler := api.NewHistoryHandler(store, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws", wsHandler.ServeHTTP)
		r.Get("/ws/agent", agentWSHandler.ServeHTTP)

		r.Route("/api", func(r chi.Router) {
			r.Route("/tenants/{tenantId}", func(r chi.Router) {
				r.Route("/conversations", func(r chi.Router) {
					r.Post("/", handoffHandler.Submit)
					r.Get("/{conversationId}", handoffHandler.GetConversation)
					r.Post("/{conversationId}/messages", handoffHandler.AppendMessage)
					r.Get("/{conversationId}/wait", handoffHandler.EstimateWait)
					r.Post("/{conversationId}/close", handoffHandler.Close)
				})

				r.Route("/agents", func(r chi.Router) {
					r.Get("/", agentsHandler.GetRoster)
					r.Post("/roster", agentsHandler.BootstrapRoster)
					r.With(api.RequireSupervisorOrAdmin).Put("/{agentId}/capacity", agentsHandler.SetCapacity)
					r.With(api.RequireSupervisorOrAdmin).Put("/{agentId}/proficiencies", agentsHandler.SetProficiencies)
					r.With(api.RequireSupervisorOrAdmin).Post("/{agentId}/logout", agentsHandler.Logout)
				})

				r.Get("/queue", adminHandler.GetQueueSnapshot)

				r.Route("/tags", func(r chi.Router) {
					r.Get("/", adminHandler.ListTags)
					r.With(api.RequireSupervisorOrAdmin).Put("/{tagId}", adminHandler.PutTag)
					r.With(api.RequireSupervisorOrAdmin).Delete("/{tagId}", adminHandler.DeleteTag)
				})
			})

			r.Route("/agents/{agentId}", func(r chi.Router) {
				r.Get("/performance", historyHandler.GetAgentPerformance)
				r.Get("/conversations", historyHandler.GetAgentConversations)
			})

			r.Group(func(r chi.Router) {
				r.Use(api.RequireAdmin)
				r.Post("/admin/tenants", adminHandler.RegisterTenant)
				r.Get("/admin/tenants/{tenantId}", adminHandler.GetTenant)
				r.Get("/routing-log", historyHandler.GetRoutingEntries)
				r.Get("/conversations", historyHandler.GetConversationRecords)
				r.Delete("/admin/dynamo", adminHandler.WipeDynamo)
			})
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the routing loops and broadcasters
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// tenantBootstrap is the on-disk tenant config format: routing config plus
// the initial tag catalog
type tenantBootstrap struct {
	Config types.TenantConfig `json:"config"`
	Tags   []types.Tag        `json:"tags"`
}

// bootstrapTenants registers tenants from JSON files in dir. When dir is
// empty a single default tenant is registered so local development works
// without any config files.
func bootstrapTenants(eng *engine.Engine, dir string) error {
	if dir == "" {
		t, err := eng.RegisterTenant(types.DefaultTenantConfig("default"))
		if err != nil {
			return err
		}
		log.Info().Str("tenant_id", t.Config.TenantID).Msg("registered default tenant")
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read tenant config dir: %w", err)
	}

	registered := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read tenant config %s: %w", entry.Name(), err)
		}

		var bootstrap tenantBootstrap
		if err := json.Unmarshal(data, &bootstrap); err != nil {
			return fmt.Errorf("parse tenant config %s: %w", entry.Name(), err)
		}

		t, err := eng.RegisterTenant(bootstrap.Config)
		if err != nil {
			return fmt.Errorf("register tenant from %s: %w", entry.Name(), err)
		}
		for _, tag := range bootstrap.Tags {
			if err := t.Catalog.Put(tag); err != nil {
				return fmt.Errorf("tenant %s tag %s: %w", t.Config.TenantID, tag.ID, err)
			}
		}
		registered++
	}

	if registered == 0 {
		return fmt.Errorf("no tenant configs found in %s", dir)
	}
	log.Info().Int("tenants", registered).Str("dir", dir).Msg("tenants registered from config dir")
	return nil
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"relaydesk-backend"}`)
}
