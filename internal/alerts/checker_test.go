package alerts

import (
	"testing"
	"time"

	"github.com/relaydesk/backend/internal/types"
)

func TestCheckQueueAlerts(t *testing.T) {
	maxWait := 30 * time.Minute

	tests := []struct {
		name     string
		snapshot types.QueueSnapshot
		want     []string // expected rules
	}{
		{
			name:     "healthy queue",
			snapshot: types.QueueSnapshot{WaitingCount: 2, AvailableAgents: 3},
			want:     nil,
		},
		{
			name:     "long wait warning",
			snapshot: types.QueueSnapshot{LongestWaitSecs: (16 * time.Minute).Seconds(), AvailableAgents: 1},
			want:     []string{"wait_long"},
		},
		{
			name:     "wait over limit",
			snapshot: types.QueueSnapshot{LongestWaitSecs: (31 * time.Minute).Seconds(), AvailableAgents: 1},
			want:     []string{"wait_over_limit"},
		},
		{
			name:     "no agents with waiting customers",
			snapshot: types.QueueSnapshot{WaitingCount: 5, AvailableAgents: 0},
			want:     []string{"no_agents"},
		},
		{
			name: "slow answers",
			snapshot: types.QueueSnapshot{
				AvailableAgents: 1,
				WaitStats:       types.WaitStatsSnapshot{TotalAnswered: 20, FastAnswerRate: 40},
			},
			want: []string{"slow_answers"},
		},
		{
			name: "slow answers suppressed on small sample",
			snapshot: types.QueueSnapshot{
				AvailableAgents: 1,
				WaitStats:       types.WaitStatsSnapshot{TotalAnswered: 3, FastAnswerRate: 0},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			CheckQueueAlerts(&tt.snapshot, maxWait)

			if len(tt.snapshot.Alerts) != len(tt.want) {
				t.Fatalf("expected %d alerts, got %+v", len(tt.want), tt.snapshot.Alerts)
			}
			for i, rule := range tt.want {
				if tt.snapshot.Alerts[i].Rule != rule {
					t.Errorf("expected rule %s at %d, got %s", rule, i, tt.snapshot.Alerts[i].Rule)
				}
			}
		})
	}
}
