package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/relaydesk/backend/internal/types"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Routing metrics
	EnqueuedTotal         int64
	AssignedTotal         int64
	OverflowAssignedTotal int64
	HoldsTotal            int64
	CapacityRacesTotal    int64
	AbandonedTotal        int64
	ResolvedTotal         int64
	TransferredTotal      int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketMessagesTotal       int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// Agent metrics
	agentsByStatus map[types.AgentStatus]int
	totalAgents    int

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			agentsByStatus:       make(map[types.AgentStatus]int),
			httpRequestsTotal:    make(map[string]map[int]int64),
			httpRequestDurations: make(map[string][]float64),
			startTime:            time.Now(),
		}
	})
	return instance
}

// RecordEnqueued increments the enqueued conversation counter
func (m *Metrics) RecordEnqueued() {
	m.mu.Lock()
	m.EnqueuedTotal++
	m.mu.Unlock()
}

// RecordAssigned increments the skill-match assignment counter
func (m *Metrics) RecordAssigned() {
	m.mu.Lock()
	m.AssignedTotal++
	m.mu.Unlock()
}

// RecordOverflowAssigned increments the overflow fallback counter
func (m *Metrics) RecordOverflowAssigned() {
	m.mu.Lock()
	m.OverflowAssignedTotal++
	m.mu.Unlock()
}

// RecordHold increments the held-in-queue counter
func (m *Metrics) RecordHold() {
	m.mu.Lock()
	m.HoldsTotal++
	m.mu.Unlock()
}

// RecordCapacityRace increments the lost-reservation counter
func (m *Metrics) RecordCapacityRace() {
	m.mu.Lock()
	m.CapacityRacesTotal++
	m.mu.Unlock()
}

// RecordAbandoned increments the abandoned conversation counter
func (m *Metrics) RecordAbandoned() {
	m.mu.Lock()
	m.AbandonedTotal++
	m.mu.Unlock()
}

// RecordResolved increments the resolved conversation counter
func (m *Metrics) RecordResolved() {
	m.mu.Lock()
	m.ResolvedTotal++
	m.mu.Unlock()
}

// RecordTransferred increments the transfer-back counter
func (m *Metrics) RecordTransferred() {
	m.mu.Lock()
	m.TransferredTotal++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessagesTotal++
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// UpdateAgentStats updates agent distribution metrics
func (m *Metrics) UpdateAgentStats(agents []types.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agentsByStatus = make(map[types.AgentStatus]int)
	m.totalAgents = len(agents)

	for _, agent := range agents {
		m.agentsByStatus[agent.Status]++
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations for percentile calculation
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("relaydesk_uptime_seconds", time.Since(m.startTime).Seconds())

		// Routing metrics
		write("relaydesk_conversations_enqueued_total", m.EnqueuedTotal)
		write("relaydesk_conversations_assigned_total", m.AssignedTotal)
		write("relaydesk_conversations_overflow_assigned_total", m.OverflowAssignedTotal)
		write("relaydesk_routing_holds_total", m.HoldsTotal)
		write("relaydesk_routing_capacity_races_total", m.CapacityRacesTotal)
		write("relaydesk_conversations_abandoned_total", m.AbandonedTotal)
		write("relaydesk_conversations_resolved_total", m.ResolvedTotal)
		write("relaydesk_conversations_transferred_total", m.TransferredTotal)

		// Calculate assignments per second
		uptimeSeconds := time.Since(m.startTime).Seconds()
		if uptimeSeconds > 0 {
			write("relaydesk_assignments_per_second", float64(m.AssignedTotal+m.OverflowAssignedTotal)/uptimeSeconds)
		}

		// WebSocket metrics
		write("relaydesk_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("relaydesk_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("relaydesk_websocket_active_connections", m.activeConnections)
		write("relaydesk_websocket_messages_total", m.WebSocketMessagesTotal)
		write("relaydesk_websocket_errors_total", m.WebSocketErrorsTotal)

		// Agent metrics
		write("relaydesk_agents_total", m.totalAgents)

		// Agents by status
		for status, count := range m.agentsByStatus {
			write("relaydesk_agents_by_status", count, "status", string(status))
		}

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("relaydesk_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
