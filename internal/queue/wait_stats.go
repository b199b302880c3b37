package queue

import "github.com/relaydesk/backend/internal/types"

const (
	// defaultAnswerThresholdSecs is the wait threshold counted as answered-fast
	defaultAnswerThresholdSecs = 60

	// defaultHandleSeconds seeds the wait estimate before any history exists
	defaultHandleSeconds = 300.0

	// handleLambda is the EWMA weight for the rolling handle-time average
	handleLambda = 0.2
)

// WaitStats tracks answer-speed and handle-time statistics for one queue
type WaitStats struct {
	ThresholdSecs    int
	AnsweredFast     int // answered within threshold
	TotalAnswered    int
	avgHandleSeconds float64
	hasHandleSample  bool
}

// NewWaitStats creates a tracker with the default answer threshold
func NewWaitStats() *WaitStats {
	return &WaitStats{ThresholdSecs: defaultAnswerThresholdSecs}
}

// RecordAnswer records a conversation being picked up by an agent
func (s *WaitStats) RecordAnswer(waitSeconds float64) {
	s.TotalAnswered++
	if waitSeconds <= float64(s.ThresholdSecs) {
		s.AnsweredFast++
	}
}

// RecordHandle folds a completed conversation's handle time into the
// recency-weighted average used for wait estimation
func (s *WaitStats) RecordHandle(handleSeconds float64) {
	if handleSeconds <= 0 {
		return
	}
	if !s.hasHandleSample {
		s.avgHandleSeconds = handleSeconds
		s.hasHandleSample = true
		return
	}
	s.avgHandleSeconds = handleLambda*handleSeconds + (1-handleLambda)*s.avgHandleSeconds
}

// AvgHandleSeconds returns the rolling handle time, seeded with a default
// so wait estimates work before any conversation completes
func (s *WaitStats) AvgHandleSeconds() float64 {
	if !s.hasHandleSample {
		return defaultHandleSeconds
	}
	return s.avgHandleSeconds
}

// FastAnswerRate returns the share of conversations answered within threshold
func (s *WaitStats) FastAnswerRate() float64 {
	if s.TotalAnswered == 0 {
		return 100.0
	}
	return float64(s.AnsweredFast) / float64(s.TotalAnswered) * 100.0
}

// Snapshot returns the stats for a queue snapshot payload
func (s *WaitStats) Snapshot() types.WaitStatsSnapshot {
	return types.WaitStatsSnapshot{
		ThresholdSecs:    s.ThresholdSecs,
		AnsweredFast:     s.AnsweredFast,
		TotalAnswered:    s.TotalAnswered,
		FastAnswerRate:   s.FastAnswerRate(),
		AvgHandleSeconds: s.AvgHandleSeconds(),
	}
}
