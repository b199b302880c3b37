package types

// WaitStatsSnapshot summarizes answer-speed stats for one tenant queue
type WaitStatsSnapshot struct {
	ThresholdSecs    int     `json:"thresholdSecs"`
	AnsweredFast     int     `json:"answeredFast"`
	TotalAnswered    int     `json:"totalAnswered"`
	FastAnswerRate   float64 `json:"fastAnswerRate"` // percentage
	AvgHandleSeconds float64 `json:"avgHandleSeconds"`
}

// AlertSeverity grades a queue alert
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// QueueAlert flags a queue health condition on a snapshot
type QueueAlert struct {
	Rule     string        `json:"rule"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// QueueSnapshot is the monitoring view of one tenant's queue state
type QueueSnapshot struct {
	TenantID        string            `json:"tenantId"`
	WaitingCount    int               `json:"waitingCount"`
	ActiveCount     int               `json:"activeCount"`
	CompletedCount  int               `json:"completedCount"`
	AbandonedCount  int               `json:"abandonedCount"`
	LongestWaitSecs float64           `json:"longestWaitSecs"`
	AvailableAgents int               `json:"availableAgents"`
	WaitStats       WaitStatsSnapshot `json:"waitStats"`
	Alerts          []QueueAlert      `json:"alerts,omitempty"`
}
