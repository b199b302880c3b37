package performance

import (
	"sync"
	"time"

	"github.com/relaydesk/backend/internal/types"
)

const (
	// DefaultLambda is the EWMA weight: recent outcomes matter more because
	// agent skill and customer mix drift over time
	DefaultLambda = 0.2

	// rollingWindow is the span of the "last 30 days" counters
	rollingWindow = 30 * 24 * time.Hour
)

type pairKey struct {
	agentID string
	tagID   string
}

// outcomeSample backs the rolling-window counters
type outcomeSample struct {
	at           time.Time
	satisfaction float64
	rated        bool
}

// Store holds per-(agent, tag) performance records for one tenant.
// Only the feedback updater writes; scoring reads immutable snapshots,
// so there is never a cycle within a single routing decision.
type Store struct {
	tenantID string
	lambda   float64
	records  map[pairKey]*types.PerformanceRecord
	samples  map[pairKey][]outcomeSample
	mu       sync.RWMutex
}

// NewStore creates an empty performance store with the default EWMA weight
func NewStore(tenantID string) *Store {
	return &Store{
		tenantID: tenantID,
		lambda:   DefaultLambda,
		records:  make(map[pairKey]*types.PerformanceRecord),
		samples:  make(map[pairKey][]outcomeSample),
	}
}

// RecordOutcome is the feedback updater entry point, called once per
// terminal conversation event. Resolved outcomes earn success credit;
// abandoned and transferred only increment totals, which pulls the
// recency-weighted success rate down for that (agent, tag) pair.
func (s *Store) RecordOutcome(agentID, tagID string, outcome types.Outcome, handleSeconds, satisfaction float64, now time.Time) {
	if agentID == "" || tagID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{agentID: agentID, tagID: tagID}
	record, ok := s.records[key]
	if !ok {
		record = &types.PerformanceRecord{
			AgentID:  agentID,
			TagID:    tagID,
			TenantID: s.tenantID,
		}
		s.records[key] = record
	}

	record.TotalConversations++

	success := 0.0
	if outcome == types.OutcomeResolved {
		record.SuccessfulResolutions++
		success = 1.0

		if handleSeconds > 0 {
			if record.AvgResolutionSeconds == 0 {
				record.AvgResolutionSeconds = handleSeconds
			} else {
				record.AvgResolutionSeconds = s.lambda*handleSeconds + (1-s.lambda)*record.AvgResolutionSeconds
			}
		}
		if satisfaction > 0 {
			if record.AvgSatisfaction == 0 {
				record.AvgSatisfaction = satisfaction
			} else {
				record.AvgSatisfaction = s.lambda*satisfaction + (1-s.lambda)*record.AvgSatisfaction
			}
		}
	}
	record.SuccessRate = s.lambda*success + (1-s.lambda)*record.SuccessRate

	s.samples[key] = append(s.samples[key], outcomeSample{
		at:           now,
		satisfaction: satisfaction,
		rated:        outcome == types.OutcomeResolved && satisfaction > 0,
	})
	s.refreshWindow(key, record, now)
}

// refreshWindow prunes samples older than the rolling window and recomputes
// the 30-day counters. Caller holds the write lock.
func (s *Store) refreshWindow(key pairKey, record *types.PerformanceRecord, now time.Time) {
	cutoff := now.Add(-rollingWindow)
	samples := s.samples[key]
	kept := samples[:0]
	for _, sample := range samples {
		if sample.at.After(cutoff) {
			kept = append(kept, sample)
		}
	}
	s.samples[key] = kept

	record.ConversationsLast30d = len(kept)
	ratedSum, ratedCount := 0.0, 0
	for _, sample := range kept {
		if sample.rated {
			ratedSum += sample.satisfaction
			ratedCount++
		}
	}
	if ratedCount > 0 {
		record.SatisfactionLast30d = ratedSum / float64(ratedCount)
	} else {
		record.SatisfactionLast30d = 0
	}
}

// Snapshot returns a copy of the record for one (agent, tag) pair.
// A missing record is the cold-start case: scoring treats it as zero.
func (s *Store) Snapshot(agentID, tagID string) (types.PerformanceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[pairKey{agentID: agentID, tagID: tagID}]
	if !ok {
		return types.PerformanceRecord{}, false
	}
	return *record, true
}

// ForAgent returns copies of all records for one agent
func (s *Store) ForAgent(agentID string) []types.PerformanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []types.PerformanceRecord
	for key, record := range s.records {
		if key.agentID == agentID {
			records = append(records, *record)
		}
	}
	return records
}

// Count returns the number of (agent, tag) records
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
