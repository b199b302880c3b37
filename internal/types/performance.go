package types

// PerformanceRecord holds rolling statistics for one (agent, tag) pair.
// Written only by the feedback updater, read as a snapshot by scoring.
//
// SuccessRate is recency-weighted (EWMA of the success indicator), not a
// raw ratio: recent outcomes move it faster so agent skill drift and
// customer-mix drift show up without a batch recompute. The raw counters
// are kept alongside for auditing.
type PerformanceRecord struct {
	AgentID               string  `json:"agentId" dynamodbav:"AgentID"`
	TagID                 string  `json:"tagId" dynamodbav:"TagID"`
	TenantID              string  `json:"tenantId" dynamodbav:"TenantID"`
	TotalConversations    int     `json:"totalConversations" dynamodbav:"TotalConversations"`
	SuccessfulResolutions int     `json:"successfulResolutions" dynamodbav:"SuccessfulResolutions"`
	SuccessRate           float64 `json:"successRate" dynamodbav:"SuccessRate"`                   // EWMA, 0..1
	AvgResolutionSeconds  float64 `json:"avgResolutionSeconds" dynamodbav:"AvgResolutionSeconds"` // EWMA
	AvgSatisfaction       float64 `json:"avgSatisfaction" dynamodbav:"AvgSatisfaction"`           // EWMA, 1..5
	ConversationsLast30d  int     `json:"conversationsLast30d" dynamodbav:"ConversationsLast30d"`
	SatisfactionLast30d   float64 `json:"satisfactionLast30d" dynamodbav:"SatisfactionLast30d"`
}
