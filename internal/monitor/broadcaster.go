package monitor

import (
	"context"
	"time"

	"github.com/relaydesk/backend/internal/alerts"
	"github.com/relaydesk/backend/internal/engine"
	"github.com/relaydesk/backend/internal/metrics"
	"github.com/relaydesk/backend/internal/types"
	"github.com/relaydesk/backend/internal/websocket"
	"github.com/rs/zerolog"
)

// Broadcaster periodically snapshots every tenant's queue, runs alert
// checks, and pushes the result to connected dashboard clients
type Broadcaster struct {
	engine *engine.Engine
	hub    *websocket.Hub
	period time.Duration
	logger zerolog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(eng *engine.Engine, hub *websocket.Hub, period time.Duration, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		engine: eng,
		hub:    hub,
		period: period,
		logger: logger.With().Str("component", "monitor").Logger(),
	}
}

// Start begins snapshotting queues and broadcasting to dashboards
func (b *Broadcaster) Start(ctx context.Context) {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	m := metrics.Get()
	b.logger.Info().Dur("period", b.period).Msg("monitor broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("monitor broadcaster stopped")
			return

		case <-ticker.C:
			now := time.Now()
			var allAgents []types.Agent

			for _, tenant := range b.engine.Tenants() {
				snapshot := tenant.Snapshot(now)
				maxWait := time.Duration(tenant.Config.MaxWaitMinutes) * time.Minute
				alerts.CheckQueueAlerts(&snapshot, maxWait)

				b.hub.BroadcastSnapshot(snapshot)
				allAgents = append(allAgents, tenant.Registry.All()...)

				if len(snapshot.Alerts) > 0 {
					b.logger.Debug().
						Str("tenant_id", snapshot.TenantID).
						Int("alerts", len(snapshot.Alerts)).
						Int("waiting", snapshot.WaitingCount).
						Msg("queue alerts active")
				}
			}

			m.UpdateAgentStats(allAgents)
		}
	}
}
