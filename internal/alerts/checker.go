package alerts

import (
	"fmt"
	"time"

	"github.com/relaydesk/backend/internal/types"
)

const (
	// Fraction of the tenant's max wait at which the queue is flagged
	warningFraction = 0.5

	// Fast-answer rate below this is flagged once enough answers exist
	fastRateFloor = 50.0
	fastRateMin   = 10 // answered conversations before the rate is meaningful
)

// CheckQueueAlerts evaluates alert rules for a queue snapshot, mutating
// the snapshot's Alerts field in place. maxWait is the tenant's configured
// abandonment timeout.
func CheckQueueAlerts(snapshot *types.QueueSnapshot, maxWait time.Duration) {
	snapshot.Alerts = nil

	longest := time.Duration(snapshot.LongestWaitSecs * float64(time.Second))
	if longest >= maxWait {
		snapshot.Alerts = append(snapshot.Alerts, types.QueueAlert{
			Rule:     "wait_over_limit",
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("Longest wait %s exceeds limit %s", formatDuration(longest), formatDuration(maxWait)),
		})
	} else if float64(longest) >= warningFraction*float64(maxWait) {
		snapshot.Alerts = append(snapshot.Alerts, types.QueueAlert{
			Rule:     "wait_long",
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("Longest wait %s", formatDuration(longest)),
		})
	}

	if snapshot.WaitingCount > 0 && snapshot.AvailableAgents == 0 {
		snapshot.Alerts = append(snapshot.Alerts, types.QueueAlert{
			Rule:     "no_agents",
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("%d waiting with no available agents", snapshot.WaitingCount),
		})
	}

	if snapshot.WaitStats.TotalAnswered >= fastRateMin && snapshot.WaitStats.FastAnswerRate < fastRateFloor {
		snapshot.Alerts = append(snapshot.Alerts, types.QueueAlert{
			Rule:     "slow_answers",
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("Fast answer rate %.0f%%", snapshot.WaitStats.FastAnswerRate),
		})
	}
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if mins >= 60 {
		hours := mins / 60
		mins = mins % 60
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
