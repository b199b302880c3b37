package types

import "time"

// RoutingMethod names the path a routing decision took
type RoutingMethod string

const (
	MethodAssign   RoutingMethod = "assign"
	MethodOverflow RoutingMethod = "overflow_assign"
	MethodHold     RoutingMethod = "hold"
)

// CandidateScore is the per-agent scoring breakdown kept for explainability
type CandidateScore struct {
	AgentID   string  `json:"agentId" dynamodbav:"AgentID"`
	TagScore  float64 `json:"tagScore" dynamodbav:"TagScore"`
	PerfScore float64 `json:"perfScore" dynamodbav:"PerfScore"`
	LoadScore float64 `json:"loadScore" dynamodbav:"LoadScore"`
	Total     float64 `json:"total" dynamodbav:"Total"`
	Overflow  bool    `json:"overflow,omitempty" dynamodbav:"Overflow"`
}

// RoutingLogEntry is the immutable audit record for one routing decision.
// Append-only; every transition into assigned produces exactly one entry.
type RoutingLogEntry struct {
	DateKey        string           `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD (partition key)
	EntryID        string           `json:"entryId" dynamodbav:"EntryID"` // sort key
	ConversationID string           `json:"conversationId" dynamodbav:"ConversationID"`
	TenantID       string           `json:"tenantId" dynamodbav:"TenantID"`
	AgentID        string           `json:"agentId,omitempty" dynamodbav:"AgentID"`
	Method         RoutingMethod    `json:"method" dynamodbav:"Method"`
	Confidence     float64          `json:"confidence" dynamodbav:"Confidence"`
	Breakdown      []CandidateScore `json:"breakdown,omitempty" dynamodbav:"Breakdown"`
	FallbackReason string           `json:"fallbackReason,omitempty" dynamodbav:"FallbackReason"`
	RoutedAt       time.Time        `json:"routedAt" dynamodbav:"RoutedAt"`
}
