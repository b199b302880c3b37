package types

import "time"

// ConversationStatus represents the lifecycle state of a conversation
type ConversationStatus string

const (
	ConversationQueued      ConversationStatus = "queued"
	ConversationAssigned    ConversationStatus = "assigned"
	ConversationResolved    ConversationStatus = "resolved"
	ConversationAbandoned   ConversationStatus = "abandoned"
	ConversationTransferred ConversationStatus = "transferred"
)

// Outcome is the terminal result reported when a conversation closes
type Outcome string

const (
	OutcomeResolved    Outcome = "resolved"
	OutcomeAbandoned   Outcome = "abandoned"
	OutcomeTransferred Outcome = "transferred"
)

// Conversation is a customer conversation handed off from the bot layer
type Conversation struct {
	ID              string             `json:"conversationId"`
	TenantID        string             `json:"tenantId"`
	Status          ConversationStatus `json:"status"`
	Priority        int                `json:"priority"`
	DetectedTags    []DetectedTag      `json:"detectedTags,omitempty"`
	QueuedAt        time.Time          `json:"queuedAt"`
	AssignedAt      *time.Time         `json:"assignedAt,omitempty"`
	ClosedAt        *time.Time         `json:"closedAt,omitempty"`
	AssignedAgentID string             `json:"assignedAgentId,omitempty"`
	QueuePosition   int                `json:"queuePosition,omitempty"`
	// Text accumulates user-authored message content; tag detection re-runs
	// against it while the conversation is still queued.
	Text      string `json:"-"`
	TagsStale bool   `json:"-"`
}

// PrimaryTag returns the highest-confidence detected tag, if any
func (c *Conversation) PrimaryTag() (DetectedTag, bool) {
	if len(c.DetectedTags) == 0 {
		return DetectedTag{}, false
	}
	return c.DetectedTags[0], true
}

// WaitTime returns how long the conversation has been (or was) waiting
func (c *Conversation) WaitTime(now time.Time) time.Duration {
	if c.AssignedAt != nil {
		return c.AssignedAt.Sub(c.QueuedAt)
	}
	if c.ClosedAt != nil {
		return c.ClosedAt.Sub(c.QueuedAt)
	}
	return now.Sub(c.QueuedAt)
}

// ConversationRecord is a closed conversation flattened for persistence
type ConversationRecord struct {
	DateKey        string  `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD (partition key)
	ConversationID string  `json:"conversationId" dynamodbav:"ConversationID"`
	TenantID       string  `json:"tenantId" dynamodbav:"TenantID"`
	AgentID        string  `json:"agentId" dynamodbav:"AgentID"`
	PrimaryTagID   string  `json:"primaryTagId" dynamodbav:"PrimaryTagID"`
	Outcome        string  `json:"outcome" dynamodbav:"Outcome"`
	QueuedAt       string  `json:"queuedAt" dynamodbav:"QueuedAt"`   // RFC3339
	AssignedAt     string  `json:"assignedAt" dynamodbav:"AssignedAt"`
	ClosedAt       string  `json:"closedAt" dynamodbav:"ClosedAt"`
	WaitSeconds    float64 `json:"waitSeconds" dynamodbav:"WaitSeconds"`
	HandleSeconds  float64 `json:"handleSeconds" dynamodbav:"HandleSeconds"`
	Satisfaction   float64 `json:"satisfaction,omitempty" dynamodbav:"Satisfaction"`
	Abandoned      bool    `json:"abandoned" dynamodbav:"Abandoned"`
}
