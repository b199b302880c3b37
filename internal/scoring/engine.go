package scoring

import (
	"sort"

	"github.com/relaydesk/backend/internal/types"
)

// Hold and fallback reasons surfaced in routing log entries
const (
	ReasonNoCapacity = "no_capacity"
	ReasonNoTagMatch = "no_tag_match"
)

// Decision is the outcome of scoring one conversation against a candidate pool
type Decision struct {
	Method     types.RoutingMethod
	AgentID    string
	Confidence float64
	Breakdown  []types.CandidateScore
	Reason     string // hold or fallback reason
}

// Hold reports whether the conversation should stay queued
func (d Decision) Hold() bool {
	return d.Method == types.MethodHold
}

// PerformanceReader exposes the immutable per-(agent, tag) snapshot read
// during scoring; the feedback updater writes behind this interface.
type PerformanceReader interface {
	Snapshot(agentID, tagID string) (types.PerformanceRecord, bool)
}

// Strategy selects the best agent for a queued conversation
type Strategy interface {
	Select(conv *types.Conversation, candidates []types.Candidate, weights types.ScoringWeights) Decision
}

// ForMethod returns the strategy for a tenant's configured assignment method
func ForMethod(method types.AssignmentMethod, perf PerformanceReader) Strategy {
	if method == types.MethodRoundRobin {
		return &RoundRobin{}
	}
	return &SkillBased{perf: perf}
}

// SkillBased is the multi-factor greedy scorer: explainable over optimal
type SkillBased struct {
	perf PerformanceReader
}

// NewSkillBased creates the default scoring strategy
func NewSkillBased(perf PerformanceReader) *SkillBased {
	return &SkillBased{perf: perf}
}

// Select scores every candidate and picks the highest total. Ties break on
// load score (prefer the less-loaded agent), then lowest agent ID for
// determinism. Scoring is read-only and runs against snapshots.
func (s *SkillBased) Select(conv *types.Conversation, candidates []types.Candidate, weights types.ScoringWeights) Decision {
	if len(candidates) == 0 {
		return Decision{Method: types.MethodHold, Reason: ReasonNoCapacity}
	}

	breakdown := make([]types.CandidateScore, 0, len(candidates))
	for _, cand := range candidates {
		breakdown = append(breakdown, s.score(conv, cand, weights))
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Total != breakdown[j].Total {
			return breakdown[i].Total > breakdown[j].Total
		}
		if breakdown[i].LoadScore != breakdown[j].LoadScore {
			return breakdown[i].LoadScore > breakdown[j].LoadScore
		}
		return breakdown[i].AgentID < breakdown[j].AgentID
	})

	if anyTagMatch(breakdown) {
		best := breakdown[0]
		return Decision{
			Method:     types.MethodAssign,
			AgentID:    best.AgentID,
			Confidence: best.Total,
			Breakdown:  breakdown,
		}
	}

	// No skill match anywhere: fall back to the least-loaded
	// overflow-eligible agent rather than holding the conversation.
	if overflow, ok := bestOverflow(breakdown, candidates); ok {
		return Decision{
			Method:     types.MethodOverflow,
			AgentID:    overflow.AgentID,
			Confidence: overflow.Total,
			Breakdown:  breakdown,
			Reason:     ReasonNoTagMatch,
		}
	}

	// Candidates exist but none is usable for this conversation:
	// with no detected tags there is nothing to match on, so assign by
	// performance and load alone.
	if len(conv.DetectedTags) == 0 {
		best := breakdown[0]
		return Decision{
			Method:     types.MethodAssign,
			AgentID:    best.AgentID,
			Confidence: best.Total,
			Breakdown:  breakdown,
		}
	}

	return Decision{Method: types.MethodHold, Reason: ReasonNoCapacity, Breakdown: breakdown}
}

// score computes the per-candidate breakdown:
//
//	tag_score  = max over detected tags of (proficiency/5) * confidence
//	perf_score = success_rate*0.6 + normalized satisfaction*0.4
//	load_score = 1 - current_active/max_concurrent
func (s *SkillBased) score(conv *types.Conversation, cand types.Candidate, weights types.ScoringWeights) types.CandidateScore {
	agent := cand.Agent

	tagScore := 0.0
	bestTagID := ""
	for _, tag := range conv.DetectedTags {
		level, ok := agent.Proficiencies[tag.TagID]
		if !ok {
			continue
		}
		score := float64(level) / float64(types.ProficiencyMax) * tag.Confidence
		if score > tagScore {
			tagScore = score
			bestTagID = tag.TagID
		}
	}
	if bestTagID == "" {
		if primary, ok := conv.PrimaryTag(); ok {
			bestTagID = primary.TagID
		}
	}

	perfScore := 0.0
	if s.perf != nil && bestTagID != "" {
		if record, ok := s.perf.Snapshot(agent.ID, bestTagID); ok {
			perfScore = record.SuccessRate*0.6 + normalizeSatisfaction(record.AvgSatisfaction)*0.4
		}
	}

	maxConcurrent := agent.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	loadScore := 1.0 - float64(agent.CurrentActive)/float64(maxConcurrent)

	return types.CandidateScore{
		AgentID:   agent.ID,
		TagScore:  tagScore,
		PerfScore: perfScore,
		LoadScore: loadScore,
		Total:     weights.Tag*tagScore + weights.Perf*perfScore + weights.Load*loadScore,
		Overflow:  cand.Overflow,
	}
}

// normalizeSatisfaction maps the 1..5 satisfaction scale onto 0..1
func normalizeSatisfaction(satisfaction float64) float64 {
	if satisfaction <= 1 {
		return 0
	}
	if satisfaction >= 5 {
		return 1
	}
	return (satisfaction - 1) / 4
}

func anyTagMatch(breakdown []types.CandidateScore) bool {
	for _, score := range breakdown {
		if score.TagScore > 0 {
			return true
		}
	}
	return false
}

// bestOverflow returns the highest-load-score candidate willing to take
// out-of-skill work
func bestOverflow(breakdown []types.CandidateScore, candidates []types.Candidate) (types.CandidateScore, bool) {
	eligible := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		if cand.Overflow || cand.Agent.AcceptsOverflow {
			eligible[cand.Agent.ID] = true
		}
	}
	best := types.CandidateScore{}
	found := false
	for _, score := range breakdown {
		if !eligible[score.AgentID] {
			continue
		}
		if !found || score.LoadScore > best.LoadScore ||
			(score.LoadScore == best.LoadScore && score.AgentID < best.AgentID) {
			best = score
			found = true
		}
	}
	return best, found
}

// RoundRobin rotates assignments to the agent idle the longest, ignoring
// skill matching entirely
type RoundRobin struct{}

// Select picks the candidate with the oldest last assignment; never-assigned
// agents win. Ties break on lowest agent ID.
func (r *RoundRobin) Select(conv *types.Conversation, candidates []types.Candidate, _ types.ScoringWeights) Decision {
	if len(candidates) == 0 {
		return Decision{Method: types.MethodHold, Reason: ReasonNoCapacity}
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.Agent.LastAssignedAt.Before(best.Agent.LastAssignedAt) {
			best = cand
			continue
		}
		if cand.Agent.LastAssignedAt.Equal(best.Agent.LastAssignedAt) && cand.Agent.ID < best.Agent.ID {
			best = cand
		}
	}

	method := types.MethodAssign
	reason := ""
	if best.Overflow {
		method = types.MethodOverflow
		reason = ReasonNoTagMatch
	}
	return Decision{
		Method:  method,
		AgentID: best.Agent.ID,
		Reason:  reason,
	}
}
